package jobs

import (
	"time"

	"jobtrack.gg/internal/protocol"
	"jobtrack.gg/internal/tracks"
)

// Event is one discrete world action delivered by the host transport.
// Column counts additional identical subjects stacked above the triggering
// one; Grown reports host-observed maturity for crops.
type Event struct {
	ActorID string
	Kind    string
	Subject string
	Tool    string
	World   string
	Pos     [3]int
	Column  int
	Grown   bool
}

// Processor turns raw events into XP, currency, and level-up outcomes. The
// fast checks (eligibility, rate limit, dedupe) run on the caller; the
// profile mutation runs under the profile's own lock; side effects leave
// through the effect queue.
type Processor struct {
	mgr      *Manager
	provider *tracks.Provider
	stats    *DebugStats
	effects  *EffectQueue
}

func NewProcessor(mgr *Manager, provider *tracks.Provider, stats *DebugStats, effects *EffectQueue) *Processor {
	return &Processor{mgr: mgr, provider: provider, stats: stats, effects: effects}
}

// StackAmount folds a column of extra identical subjects into one reward
// amount: the triggering unit counts 1.0, each further unit contributes the
// previous unit's value times decay.
func StackAmount(decay float64, extra int) float64 {
	total, cur := 1.0, 1.0
	for i := 0; i < extra; i++ {
		cur *= decay
		total += cur
	}
	return total
}

// HandleEvent is the intake pipeline. Not-loaded and not-joined conditions
// are silent no-ops: they are expected races around disconnects, never
// errors.
func (pr *Processor) HandleEvent(ev Event) {
	profile, ok := pr.mgr.Get(ev.ActorID)
	if !ok {
		return
	}
	set := pr.provider.Current()

	switch ev.Kind {
	case protocol.EventPlace:
		pr.handlePlace(ev, profile, set)
	case protocol.EventBreak:
		pr.handleBreak(ev, profile, set)
	case protocol.EventHarvest:
		pr.handleHarvest(ev, profile, set)
	case protocol.EventFish:
		pr.handleFish(ev, profile, set)
	}
}

func (pr *Processor) handlePlace(ev Event, profile *Profile, set *tracks.Set) {
	// Any placement of a subject some break-rewarding track whitelists gets
	// fingerprinted, so a later break of it pays nothing while fresh.
	for _, id := range set.TracksForSubject(ev.Subject) {
		t := set.Get(id)
		if t != nil && t.DedupePlaced() {
			pr.mgr.Placed().Record(ev.World, ev.Pos[0], ev.Pos[1], ev.Pos[2])
			break
		}
	}

	for _, id := range set.IDs() {
		t := set.Get(id)
		if t == nil || !t.HandlesEvent(protocol.EventPlace) {
			continue
		}
		if !profile.IsJoined(id) {
			continue
		}
		pr.stats.RecordAttempt(ev.ActorID, id, 1.0)
		if !t.ValidSubject(ev.Subject) {
			continue
		}
		if !pr.mgr.Limiters().Allow(ev.ActorID, id, t.MaxActionsPerSecond) {
			continue
		}
		// Stamp-and-check in one step: an immediate re-place at the same spot
		// within the ttl pays nothing (build/break/build exploit).
		if pr.mgr.Cooldown().ShouldBlockAndRecord(ev.World, ev.Pos[0], ev.Pos[1], ev.Pos[2]) {
			continue
		}
		actorID, trackID, subject := ev.ActorID, id, ev.Subject
		go pr.Process(actorID, trackID, subject, 1.0)
	}
}

func (pr *Processor) handleBreak(ev Event, profile *Profile, set *tracks.Set) {
	candidates := set.TracksForSubject(ev.Subject)
	if len(candidates) == 0 {
		return
	}

	// A block a placement track just put down never pays break rewards.
	if pr.mgr.Cooldown().IsRecent(ev.World, ev.Pos[0], ev.Pos[1], ev.Pos[2]) {
		return
	}

	for _, id := range candidates {
		t := set.Get(id)
		if t == nil || !t.HandlesEvent(protocol.EventBreak) {
			continue
		}
		if !profile.IsJoined(id) {
			continue
		}
		pr.stats.RecordAttempt(ev.ActorID, id, 1.0)
		if !t.ValidTool(ev.Tool) {
			continue
		}
		if !t.ValidSubject(ev.Subject) {
			continue
		}
		if !pr.mgr.Limiters().Allow(ev.ActorID, id, t.MaxActionsPerSecond) {
			continue
		}
		if t.DedupePlaced() && t.Whitelisted(ev.Subject) {
			if pr.mgr.Placed().IsRecent(ev.World, ev.Pos[0], ev.Pos[1], ev.Pos[2]) {
				continue
			}
		}
		if t.RequiresGrown(ev.Subject) && !ev.Grown {
			continue
		}

		amount := StackAmount(t.StackDecayMultiplier, ev.Column)
		actorID, trackID, subject := ev.ActorID, id, ev.Subject
		go pr.Process(actorID, trackID, subject, amount)
	}
}

func (pr *Processor) handleHarvest(ev Event, profile *Profile, set *tracks.Set) {
	for _, id := range set.TracksForSubject(ev.Subject) {
		t := set.Get(id)
		if t == nil || !t.HandlesEvent(protocol.EventHarvest) {
			continue
		}
		if !profile.IsJoined(id) {
			continue
		}
		pr.stats.RecordAttempt(ev.ActorID, id, 1.0)
		if !t.ValidSubject(ev.Subject) {
			continue
		}
		if !pr.mgr.Limiters().Allow(ev.ActorID, id, t.MaxActionsPerSecond) {
			continue
		}
		if t.Whitelisted(ev.Subject) {
			if pr.mgr.Placed().IsRecent(ev.World, ev.Pos[0], ev.Pos[1], ev.Pos[2]) {
				continue
			}
		}
		if !ev.Grown {
			continue
		}
		actorID, trackID, subject := ev.ActorID, id, ev.Subject
		go pr.Process(actorID, trackID, subject, 1.0)
	}
}

func (pr *Processor) handleFish(ev Event, profile *Profile, set *tracks.Set) {
	for _, id := range set.IDs() {
		t := set.Get(id)
		if t == nil || !t.HandlesEvent(protocol.EventFish) {
			continue
		}
		if !profile.IsJoined(id) {
			continue
		}
		pr.stats.RecordAttempt(ev.ActorID, id, 1.0)
		if !t.ValidSubject(ev.Subject) {
			continue
		}
		if !pr.mgr.Limiters().Allow(ev.ActorID, id, t.MaxActionsPerSecond) {
			continue
		}
		actorID, trackID, subject := ev.ActorID, id, ev.Subject
		go pr.Process(actorID, trackID, subject, 1.0)
	}
}

// Process applies one validated action to the profile: XP gain, income,
// at most one level-up. Runs on a worker context; only the profile mutation
// holds the profile lock.
func (pr *Processor) Process(actorID, trackID, subject string, amount float64) {
	profile, ok := pr.mgr.Get(actorID)
	if !ok || !profile.IsJoined(trackID) {
		return
	}

	t := pr.provider.Current().Get(trackID)
	if t == nil || !t.ValidSubject(subject) {
		return
	}

	pr.stats.RecordSuccess(actorID, trackID, amount)

	gainedXP := t.XPPerAction * amount
	today := EpochDay(time.Now())

	out, ok := profile.ApplyReward(trackID, gainedXP, today, t.RequiredXP)
	if !ok {
		return
	}

	money := t.Income(out.Level) * amount * out.TenureMult
	if money <= 0 && !out.Leveled {
		return
	}

	pr.effects.enqueue(effect{
		actorID:     actorID,
		money:       money,
		leveled:     out.Leveled,
		newLevel:    out.NewLevel,
		displayName: t.DisplayName,
		audit: RewardEntry{
			ActorID: actorID,
			TrackID: trackID,
			Subject: subject,
			Amount:  amount,
			XP:      gainedXP,
			Money:   money,
			Leveled: out.Leveled,
			Level:   out.NewLevel,
		},
	})
}
