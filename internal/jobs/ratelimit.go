package jobs

import (
	"sync"
	"time"
)

// rateLimiter is a strict fixed one-second window. Not a token bucket: the
// count resets only when the wall-clock second changes.
type rateLimiter struct {
	mu        sync.Mutex
	windowSec int64
	count     int
}

func (l *rateLimiter) allowAt(nowSec int64, max int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if nowSec > l.windowSec {
		l.windowSec = nowSec
		l.count = 0
	}
	if l.count < max {
		l.count++
		return true
	}
	return false
}

// RateLimiters keys strict per-second limiters by (actor, track). Entries
// are created lazily and dropped with the actor.
type RateLimiters struct {
	mu      sync.Mutex
	byActor map[string]map[string]*rateLimiter
}

func NewRateLimiters() *RateLimiters {
	return &RateLimiters{byActor: map[string]map[string]*rateLimiter{}}
}

// Allow reports whether one more action fits the current second's budget.
// max <= 0 means unrestricted. A consumed slot is not refunded when a later
// pipeline check rejects the action: the budget bounds attempts, not payouts.
func (r *RateLimiters) Allow(actorID, trackID string, max int) bool {
	return r.allowAt(actorID, trackID, max, time.Now().Unix())
}

func (r *RateLimiters) allowAt(actorID, trackID string, max int, nowSec int64) bool {
	if max <= 0 {
		return true
	}
	r.mu.Lock()
	buckets, ok := r.byActor[actorID]
	if !ok {
		buckets = map[string]*rateLimiter{}
		r.byActor[actorID] = buckets
	}
	l, ok := buckets[trackID]
	if !ok {
		l = &rateLimiter{}
		buckets[trackID] = l
	}
	r.mu.Unlock()

	return l.allowAt(nowSec, max)
}

// Drop discards all limiter state for an actor (disconnect).
func (r *RateLimiters) Drop(actorID string) {
	r.mu.Lock()
	delete(r.byActor, actorID)
	r.mu.Unlock()
}
