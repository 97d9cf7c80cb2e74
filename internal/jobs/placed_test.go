package jobs

import (
	"testing"
	"time"
)

func TestBlockTracker_RecentWithinTTL(t *testing.T) {
	tr := NewBlockTracker(3 * time.Second)

	tr.recordAt("overworld", 10, 64, -5, 1000)
	if !tr.isRecentAt("overworld", 10, 64, -5, 1500) {
		t.Fatalf("expected recent immediately after record")
	}
	if !tr.isRecentAt("overworld", 10, 64, -5, 4000) {
		t.Fatalf("expected recent at exactly ttl")
	}
	if tr.isRecentAt("overworld", 10, 64, -5, 4001) {
		t.Fatalf("expected expired past ttl")
	}
	// Lazy expiry removed the entry.
	if tr.isRecentAt("overworld", 10, 64, -5, 1001) {
		t.Fatalf("expired entry resurrected")
	}
}

func TestBlockTracker_NoCollisions(t *testing.T) {
	tr := NewBlockTracker(time.Second)

	seen := map[uint64]string{}
	for x := -20; x <= 20; x += 5 {
		for y := -10; y <= 300; y += 31 {
			for z := -20; z <= 20; z += 5 {
				k := tr.fingerprint("overworld", x, y, z)
				if prev, ok := seen[k]; ok {
					t.Fatalf("fingerprint collision at (%d,%d,%d) with %s", x, y, z, prev)
				}
				seen[k] = "overworld"
			}
		}
	}
}

func TestBlockTracker_WorldSaltSeparatesWorlds(t *testing.T) {
	tr := NewBlockTracker(time.Second)

	if tr.fingerprint("overworld", 1, 2, 3) == tr.fingerprint("nether", 1, 2, 3) {
		t.Fatalf("same coordinates in different worlds collided")
	}
	// Salt is stable for the process lifetime.
	if tr.fingerprint("overworld", 1, 2, 3) != tr.fingerprint("overworld", 1, 2, 3) {
		t.Fatalf("fingerprint not deterministic within a world")
	}

	tr.recordAt("overworld", 1, 2, 3, 1000)
	if tr.isRecentAt("nether", 1, 2, 3, 1000) {
		t.Fatalf("record leaked across worlds")
	}
}

func TestBlockTracker_ShouldBlockAndRecord(t *testing.T) {
	tr := NewBlockTracker(3 * time.Second)

	if tr.shouldBlockAndRecordAt("w", 0, 0, 0, 1000) {
		t.Fatalf("first touch blocked")
	}
	if !tr.shouldBlockAndRecordAt("w", 0, 0, 0, 2000) {
		t.Fatalf("fresh re-touch not blocked")
	}
	if tr.shouldBlockAndRecordAt("w", 0, 0, 0, 9000) {
		t.Fatalf("stale re-touch blocked")
	}
}

func TestBlockTracker_Cleanup(t *testing.T) {
	tr := NewBlockTracker(time.Millisecond)

	tr.Record("w", 1, 1, 1)
	tr.Record("w", 2, 2, 2)
	time.Sleep(5 * time.Millisecond)
	tr.Cleanup()

	tr.mu.Lock()
	n := len(tr.placedAt)
	tr.mu.Unlock()
	if n != 0 {
		t.Fatalf("cleanup left %d stale entries", n)
	}
}
