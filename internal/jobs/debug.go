package jobs

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Presence reports whether an actor can still receive messages.
type Presence interface {
	Reachable(actorID string) bool
}

// DebugStats accumulates per-second attempt/success counters for actors who
// opted in and flushes one chat-sized report per actor per second.
type DebugStats struct {
	notifier Notifier
	presence Presence

	mu      sync.Mutex
	enabled map[string]struct{}
	buckets map[string]*statsBucket
}

type statsBucket struct {
	second int64
	counts map[string]*trackCounts
}

type trackCounts struct {
	attempts  float64
	successes float64
}

func NewDebugStats(notifier Notifier, presence Presence) *DebugStats {
	return &DebugStats{
		notifier: notifier,
		presence: presence,
		enabled:  map[string]struct{}{},
		buckets:  map[string]*statsBucket{},
	}
}

// Toggle flips the opt-in and reports the new state.
func (d *DebugStats) Toggle(actorID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.enabled[actorID]; ok {
		delete(d.enabled, actorID)
		delete(d.buckets, actorID)
		return false
	}
	d.enabled[actorID] = struct{}{}
	d.buckets[actorID] = &statsBucket{second: time.Now().Unix(), counts: map[string]*trackCounts{}}
	return true
}

func (d *DebugStats) RecordAttempt(actorID, trackID string, units float64) {
	d.record(actorID, trackID, units, false)
}

func (d *DebugStats) RecordSuccess(actorID, trackID string, units float64) {
	d.record(actorID, trackID, units, true)
}

func (d *DebugStats) record(actorID, trackID string, units float64, success bool) {
	if units <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.enabled[actorID]; !ok {
		return
	}
	b, ok := d.buckets[actorID]
	if !ok {
		b = &statsBucket{second: time.Now().Unix(), counts: map[string]*trackCounts{}}
		d.buckets[actorID] = b
	}
	c, ok := b.counts[trackID]
	if !ok {
		c = &trackCounts{}
		b.counts[trackID] = c
	}
	if success {
		c.successes += units
	} else {
		c.attempts += units
	}
}

// Tick rolls buckets whose second has passed and emits the flushed totals.
// Unreachable actors are dropped from the opt-in set.
func (d *DebugStats) Tick() {
	d.tickAt(time.Now().Unix())
}

func (d *DebugStats) tickAt(nowSec int64) {
	type report struct {
		actorID string
		message string
	}
	var reports []report
	var dropped []string

	d.mu.Lock()
	for actorID := range d.enabled {
		if d.presence != nil && !d.presence.Reachable(actorID) {
			dropped = append(dropped, actorID)
			continue
		}
		b, ok := d.buckets[actorID]
		if !ok {
			d.buckets[actorID] = &statsBucket{second: nowSec, counts: map[string]*trackCounts{}}
			continue
		}
		if nowSec <= b.second {
			continue
		}
		flushed := b.counts
		d.buckets[actorID] = &statsBucket{second: nowSec, counts: map[string]*trackCounts{}}
		if len(flushed) == 0 {
			continue
		}
		reports = append(reports, report{actorID: actorID, message: formatStats(flushed)})
	}
	for _, actorID := range dropped {
		delete(d.enabled, actorID)
		delete(d.buckets, actorID)
	}
	d.mu.Unlock()

	if d.notifier == nil {
		return
	}
	for _, r := range reports {
		d.notifier.Notify(r.actorID, r.message)
	}
}

func formatStats(counts map[string]*trackCounts) string {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		c := counts[id]
		parts = append(parts, fmt.Sprintf("%s: %s try %s paid", capitalize(id), fmtUnits(c.attempts), fmtUnits(c.successes)))
	}
	return "[debug] " + strings.Join(parts, " | ")
}

func fmtUnits(v float64) string {
	r := math.Round(v)
	if math.Abs(v-r) < 1e-6 {
		return fmt.Sprintf("%d", int64(r))
	}
	return fmt.Sprintf("%.2f", v)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
