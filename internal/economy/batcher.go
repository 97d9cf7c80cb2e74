// Package economy batches per-actor currency credits so the external ledger
// sees at most one deposit per actor per flush interval, however many reward
// events landed in between.
package economy

import (
	"log"
	"math"
	"sync"
)

// Ledger is the external currency service.
type Ledger interface {
	Deposit(actorID string, amount float64) error
}

// Batcher accumulates pending credits in integer cents to keep thousands of
// small float credits from drifting.
type Batcher struct {
	ledger Ledger
	log    *log.Logger

	mu      sync.Mutex
	pending map[string]int64
}

func NewBatcher(ledger Ledger, logger *log.Logger) *Batcher {
	return &Batcher{ledger: ledger, log: logger, pending: map[string]int64{}}
}

// Credit adds to the actor's pending balance. Non-positive amounts are
// no-ops.
func (b *Batcher) Credit(actorID string, amount float64) {
	if actorID == "" || amount <= 0 {
		return
	}
	cents := int64(math.Round(amount * 100))
	if cents <= 0 {
		return
	}
	b.mu.Lock()
	b.pending[actorID] += cents
	b.mu.Unlock()
}

// Flush drains up to maxActors pending balances, one deposit call each. A
// failed deposit keeps the balance pending for the next cycle.
func (b *Batcher) Flush(maxActors int) {
	if maxActors < 1 {
		maxActors = 1
	}

	type due struct {
		actorID string
		cents   int64
	}
	var batch []due

	b.mu.Lock()
	for actorID, cents := range b.pending {
		if len(batch) >= maxActors {
			break
		}
		if cents <= 0 {
			delete(b.pending, actorID)
			continue
		}
		batch = append(batch, due{actorID, cents})
		delete(b.pending, actorID)
	}
	b.mu.Unlock()

	for _, d := range batch {
		if err := b.ledger.Deposit(d.actorID, float64(d.cents)/100.0); err != nil {
			b.log.Printf("deposit %s: %v", d.actorID, err)
			b.mu.Lock()
			b.pending[d.actorID] += d.cents
			b.mu.Unlock()
		}
	}
}

// FlushAll drains every pending balance unconditionally (shutdown path).
func (b *Batcher) FlushAll() {
	for {
		b.mu.Lock()
		n := len(b.pending)
		b.mu.Unlock()
		if n == 0 {
			return
		}
		before := n
		b.Flush(math.MaxInt32)
		b.mu.Lock()
		after := len(b.pending)
		b.mu.Unlock()
		if after >= before {
			// Ledger is refusing everything; don't spin forever on shutdown.
			return
		}
	}
}

// PendingCents reports an actor's queued balance (diagnostics and tests).
func (b *Batcher) PendingCents(actorID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[actorID]
}
