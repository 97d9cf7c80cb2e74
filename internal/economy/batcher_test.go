package economy

import (
	"errors"
	"io"
	"log"
	"math"
	"sync"
	"testing"
)

type memLedger struct {
	mu       sync.Mutex
	deposits map[string]float64
	calls    int
	err      error
}

func newMemLedger() *memLedger { return &memLedger{deposits: map[string]float64{}} }

func (l *memLedger) Deposit(actorID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return l.err
	}
	l.deposits[actorID] += amount
	return nil
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestBatcher_QuantizesToCents(t *testing.T) {
	b := NewBatcher(newMemLedger(), testLogger())

	b.Credit("a", 0.054)
	if got := b.PendingCents("a"); got != 5 {
		t.Fatalf("pending: got %d, want 5", got)
	}
	b.Credit("a", 0.055)
	if got := b.PendingCents("a"); got != 11 {
		t.Fatalf("pending after round-half-up: got %d, want 11", got)
	}
}

func TestBatcher_IgnoresNonPositive(t *testing.T) {
	b := NewBatcher(newMemLedger(), testLogger())

	b.Credit("a", 0)
	b.Credit("a", -5)
	b.Credit("a", 0.001) // rounds to zero cents
	b.Credit("", 1)
	if got := b.PendingCents("a"); got != 0 {
		t.Fatalf("pending: got %d, want 0", got)
	}
}

func TestBatcher_FlushOneDepositPerActor(t *testing.T) {
	l := newMemLedger()
	b := NewBatcher(l, testLogger())

	for i := 0; i < 100; i++ {
		b.Credit("a", 0.05)
	}
	b.Credit("b", 1.25)

	b.Flush(500)

	if l.calls != 2 {
		t.Fatalf("deposit calls: got %d, want 2", l.calls)
	}
	if got := l.deposits["a"]; math.Abs(got-5.0) > 1e-9 {
		t.Fatalf("actor a total: got %v, want 5.0", got)
	}
	if got := l.deposits["b"]; math.Abs(got-1.25) > 1e-9 {
		t.Fatalf("actor b total: got %v, want 1.25", got)
	}
	if b.PendingCents("a") != 0 || b.PendingCents("b") != 0 {
		t.Fatalf("flushed balances still pending")
	}
}

func TestBatcher_FlushHonorsActorCap(t *testing.T) {
	l := newMemLedger()
	b := NewBatcher(l, testLogger())

	for i := 0; i < 10; i++ {
		b.Credit("actor"+string(rune('a'+i)), 1)
	}
	b.Flush(3)
	if l.calls != 3 {
		t.Fatalf("deposit calls: got %d, want 3", l.calls)
	}
	b.Flush(100)
	if l.calls != 10 {
		t.Fatalf("deposit calls after second flush: got %d, want 10", l.calls)
	}
}

func TestBatcher_FailedDepositRequeues(t *testing.T) {
	l := newMemLedger()
	b := NewBatcher(l, testLogger())

	b.Credit("a", 2.50)
	l.err = errors.New("ledger down")
	b.Flush(10)
	if got := b.PendingCents("a"); got != 250 {
		t.Fatalf("failed deposit lost the balance: pending %d", got)
	}

	l.err = nil
	b.Flush(10)
	if got := l.deposits["a"]; math.Abs(got-2.50) > 1e-9 {
		t.Fatalf("retry total: got %v, want 2.50", got)
	}
	if b.PendingCents("a") != 0 {
		t.Fatalf("retried balance still pending")
	}
}

func TestBatcher_FlushAll(t *testing.T) {
	l := newMemLedger()
	b := NewBatcher(l, testLogger())

	for i := 0; i < 50; i++ {
		b.Credit("actor"+string(rune('a'+i%26)), 0.10)
	}
	b.FlushAll()
	if b.PendingCents("actora") != 0 {
		t.Fatalf("FlushAll left balances pending")
	}
}

func TestBatcher_FlushAllStopsWhenLedgerRefuses(t *testing.T) {
	l := newMemLedger()
	l.err = errors.New("ledger down")
	b := NewBatcher(l, testLogger())

	b.Credit("a", 1)
	// Must terminate, and the balance survives for a later restart.
	b.FlushAll()
	if got := b.PendingCents("a"); got != 100 {
		t.Fatalf("refused balance lost: pending %d", got)
	}
}
