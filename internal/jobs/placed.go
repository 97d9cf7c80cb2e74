package jobs

import (
	"math/rand/v2"
	"sync"
	"time"
)

// BlockTracker debounces rewards on recently-touched world positions. Keys
// are a 64-bit packing of the coordinates xor'd with a per-world random salt
// so identical coordinates in different worlds never share an entry. Expired
// entries are dropped lazily on check and swept by Cleanup.
type BlockTracker struct {
	ttlMs int64

	mu       sync.Mutex
	placedAt map[uint64]int64
	salts    map[string]uint64
}

func NewBlockTracker(ttl time.Duration) *BlockTracker {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return &BlockTracker{
		ttlMs:    ms,
		placedAt: map[uint64]int64{},
		salts:    map[string]uint64{},
	}
}

func (t *BlockTracker) Record(world string, x, y, z int) {
	t.recordAt(world, x, y, z, nowMillis())
}

func (t *BlockTracker) recordAt(world string, x, y, z int, nowMs int64) {
	k := t.fingerprint(world, x, y, z)
	t.mu.Lock()
	t.placedAt[k] = nowMs
	t.mu.Unlock()
}

// IsRecent reports whether the position was recorded within the ttl.
func (t *BlockTracker) IsRecent(world string, x, y, z int) bool {
	return t.isRecentAt(world, x, y, z, nowMillis())
}

func (t *BlockTracker) isRecentAt(world string, x, y, z int, nowMs int64) bool {
	k := t.fingerprint(world, x, y, z)
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.placedAt[k]
	if !ok {
		return false
	}
	if nowMs-at <= t.ttlMs {
		return true
	}
	delete(t.placedAt, k)
	return false
}

// ShouldBlockAndRecord stamps the position and reports whether the previous
// stamp was still fresh. One call covers both halves of a place/break cycle
// check atomically.
func (t *BlockTracker) ShouldBlockAndRecord(world string, x, y, z int) bool {
	return t.shouldBlockAndRecordAt(world, x, y, z, nowMillis())
}

func (t *BlockTracker) shouldBlockAndRecordAt(world string, x, y, z int, nowMs int64) bool {
	k := t.fingerprint(world, x, y, z)
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.placedAt[k]
	t.placedAt[k] = nowMs
	if !ok {
		return false
	}
	return nowMs-prev <= t.ttlMs
}

// Cleanup sweeps expired entries; run it on a slow periodic timer.
func (t *BlockTracker) Cleanup() {
	now := nowMillis()
	t.mu.Lock()
	for k, at := range t.placedAt {
		if now-at > t.ttlMs {
			delete(t.placedAt, k)
		}
	}
	t.mu.Unlock()
}

// fingerprint packs x/z into 26 bits each and y into 12, then xors a salt
// established once per world for the process lifetime.
func (t *BlockTracker) fingerprint(world string, x, y, z int) uint64 {
	t.mu.Lock()
	salt, ok := t.salts[world]
	if !ok {
		salt = rand.Uint64()
		if salt == 0 {
			salt = 0x9E3779B97F4A7C15
		}
		t.salts[world] = salt
	}
	t.mu.Unlock()

	k := (uint64(x)&0x3FFFFFF)<<38 | (uint64(z)&0x3FFFFFF)<<12 | uint64(y)&0xFFF
	return k ^ salt
}

func nowMillis() int64 { return time.Now().UnixMilli() }
