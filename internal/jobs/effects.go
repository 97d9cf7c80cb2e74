package jobs

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Crediter receives currency credits (the economy batcher in production).
type Crediter interface {
	Credit(actorID string, amount float64)
}

// Notifier delivers fire-and-forget messages to an actor.
type Notifier interface {
	Notify(actorID, message string)
}

// RewardEntry is one paid reward, written to the audit log.
type RewardEntry struct {
	At      string  `json:"at"`
	ActorID string  `json:"actor_id"`
	TrackID string  `json:"track_id"`
	Subject string  `json:"subject"`
	Amount  float64 `json:"amount"`
	XP      float64 `json:"xp"`
	Money   float64 `json:"money"`
	Leveled bool    `json:"leveled,omitempty"`
	Level   int     `json:"level,omitempty"`
}

// RewardSink persists reward audit entries.
type RewardSink interface {
	WriteReward(RewardEntry) error
}

type effect struct {
	actorID     string
	money       float64
	leveled     bool
	newLevel    int
	displayName string
	audit       RewardEntry
}

// EffectQueue serializes reward side effects through one consumer goroutine,
// keeping credits and notifications off the per-actor lock and off the event
// workers. Mirrors the single-authoritative-thread hand-off of the host.
type EffectQueue struct {
	crediter Crediter
	notifier Notifier
	rewards  RewardSink
	log      *log.Logger

	ch   chan effect
	wg   sync.WaitGroup
	once sync.Once
}

func NewEffectQueue(crediter Crediter, notifier Notifier, rewards RewardSink, logger *log.Logger) *EffectQueue {
	q := &EffectQueue{
		crediter: crediter,
		notifier: notifier,
		rewards:  rewards,
		log:      logger,
		ch:       make(chan effect, 4096),
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.loop()
	}()
	return q
}

func (q *EffectQueue) loop() {
	for e := range q.ch {
		if e.money > 0 && q.crediter != nil {
			q.crediter.Credit(e.actorID, e.money)
		}
		if e.leveled && q.notifier != nil {
			q.notifier.Notify(e.actorID, fmt.Sprintf("%s is now level %d!", e.displayName, e.newLevel))
		}
		if q.rewards != nil {
			if err := q.rewards.WriteReward(e.audit); err != nil {
				q.log.Printf("reward audit: %v", err)
			}
		}
	}
}

func (q *EffectQueue) enqueue(e effect) {
	e.audit.At = time.Now().UTC().Format(time.RFC3339)
	select {
	case q.ch <- e:
	default:
		// Never block an event worker on a full queue. The credit must not be
		// lost, so it lands on the batcher directly; only notify/audit is shed.
		if e.money > 0 && q.crediter != nil {
			q.crediter.Credit(e.actorID, e.money)
		}
		q.log.Printf("effect queue full, shed notify/audit for %s", e.actorID)
	}
}

// Close drains the queue and stops the consumer.
func (q *EffectQueue) Close() {
	q.once.Do(func() {
		close(q.ch)
		q.wg.Wait()
	})
}
