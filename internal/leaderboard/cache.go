// Package leaderboard serves per-track rankings from a periodically rebuilt
// immutable snapshot, so read paths never touch the database.
package leaderboard

import (
	"context"
	"log"
	"sync/atomic"
)

// Source is the durable store's ranking surface.
type Source interface {
	TopActors(ctx context.Context, trackID string, limit int) ([]string, error)
	CountActors(ctx context.Context, trackID string) (int, error)
}

type snapshot struct {
	top    map[string][]string
	counts map[string]int
}

// Cache holds the last completed snapshot. Staleness up to one refresh
// interval is the accepted trade-off.
type Cache struct {
	src      Source
	trackIDs func() []string
	limit    int
	log      *log.Logger

	snap atomic.Pointer[snapshot]
}

func NewCache(src Source, trackIDs func() []string, limit int, logger *log.Logger) *Cache {
	if limit < 1 {
		limit = 100
	}
	c := &Cache{src: src, trackIDs: trackIDs, limit: limit, log: logger}
	c.snap.Store(&snapshot{top: map[string][]string{}, counts: map[string]int{}})
	return c
}

// Refresh rebuilds the whole snapshot and swaps it in atomically. A query
// failure keeps the previous snapshot.
func (c *Cache) Refresh(ctx context.Context) error {
	next := &snapshot{top: map[string][]string{}, counts: map[string]int{}}

	for _, trackID := range c.trackIDs() {
		top, err := c.src.TopActors(ctx, trackID, c.limit)
		if err != nil {
			return err
		}
		count, err := c.src.CountActors(ctx, trackID)
		if err != nil {
			return err
		}
		next.top[trackID] = top
		next.counts[trackID] = count
	}

	c.snap.Store(next)
	return nil
}

// Rank returns the actor's 1-based position within the cached top list, or 0
// when unranked (outside the cached top or absent).
func (c *Cache) Rank(trackID, actorID string) int {
	s := c.snap.Load()
	for i, id := range s.top[trackID] {
		if id == actorID {
			return i + 1
		}
	}
	return 0
}

// Count returns the total number of actors with any row for the track.
func (c *Cache) Count(trackID string) int {
	return c.snap.Load().counts[trackID]
}

// ActorAt returns the actor at a 1-based rank.
func (c *Cache) ActorAt(trackID string, rank int) (string, bool) {
	s := c.snap.Load()
	top := s.top[trackID]
	if rank < 1 || rank > len(top) {
		return "", false
	}
	return top[rank-1], true
}
