package jobs

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// DB is the durable store consumed by the manager. SaveProfile must write the
// blob and the track rows in one transaction.
type DB interface {
	LoadProfile(ctx context.Context, actorID string) ([]byte, error)
	SaveProfile(ctx context.Context, actorID string, data []byte, rows []TrackRow) error
}

const dbOpTimeout = 5 * time.Second

// Manager owns the active-profile set plus the per-actor limiter and dedupe
// state that lives and dies with a connection. One Manager per process.
type Manager struct {
	db  DB
	log *log.Logger

	mu       sync.Mutex
	profiles map[string]*Profile

	limiters *RateLimiters
	placed   *BlockTracker
	cooldown *BlockTracker
}

func NewManager(db DB, logger *log.Logger) *Manager {
	return &Manager{
		db:       db,
		log:      logger,
		profiles: map[string]*Profile{},
		limiters: NewRateLimiters(),
		placed:   NewBlockTracker(3 * time.Second),
		cooldown: NewBlockTracker(3 * time.Second),
	}
}

func (m *Manager) Limiters() *RateLimiters { return m.limiters }
func (m *Manager) Placed() *BlockTracker   { return m.placed }
func (m *Manager) Cooldown() *BlockTracker { return m.cooldown }

// SweepTrackers expires stale dedupe entries; wired to a periodic timer.
func (m *Manager) SweepTrackers() {
	m.placed.Cleanup()
	m.cooldown.Cleanup()
}

// Load materializes the actor's profile from the store (or a fresh default)
// and installs it as the active profile.
func (m *Manager) Load(ctx context.Context, actorID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbOpTimeout)
	defer cancel()

	data, err := m.db.LoadProfile(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load profile %s: %w", actorID, err)
	}

	var p *Profile
	if data == nil {
		p = NewProfile()
	} else {
		p, err = DecodeProfile(data, EpochDay(time.Now()))
		if err != nil {
			return fmt.Errorf("decode profile %s: %w", actorID, err)
		}
	}

	m.mu.Lock()
	m.profiles[actorID] = p
	m.mu.Unlock()
	return nil
}

// LoadAsync runs Load off the caller's path, logging failures.
func (m *Manager) LoadAsync(actorID string) {
	go func() {
		if err := m.Load(context.Background(), actorID); err != nil {
			m.log.Printf("async load: %v", err)
		}
	}()
}

// Get returns the active profile, or false if the actor is not loaded.
func (m *Manager) Get(actorID string) (*Profile, bool) {
	m.mu.Lock()
	p, ok := m.profiles[actorID]
	m.mu.Unlock()
	return p, ok
}

// Unload removes the actor from the active set, saving asynchronously if
// dirty, and drops per-actor limiter state.
func (m *Manager) Unload(actorID string) {
	m.mu.Lock()
	p, ok := m.profiles[actorID]
	delete(m.profiles, actorID)
	m.mu.Unlock()

	m.limiters.Drop(actorID)

	if ok && p.Dirty() {
		go func() {
			if err := m.saveProfile(context.Background(), actorID, p); err != nil {
				m.log.Printf("unload save %s: %v", actorID, err)
			}
		}()
	}
}

// SaveAllDirty persists every dirty active profile; wired to the auto-save
// timer. A failed save leaves the profile dirty for the next cycle.
func (m *Manager) SaveAllDirty(ctx context.Context) {
	for actorID, p := range m.activeProfiles() {
		if !p.Dirty() {
			continue
		}
		if err := m.saveProfile(ctx, actorID, p); err != nil {
			m.log.Printf("auto-save %s: %v", actorID, err)
		}
	}
}

// Shutdown synchronously saves every still-active dirty profile. A store
// that already went away because the host is shutting down is tolerated;
// anything else is logged.
func (m *Manager) Shutdown(ctx context.Context) {
	for actorID, p := range m.activeProfiles() {
		if !p.Dirty() {
			continue
		}
		if err := m.saveProfile(ctx, actorID, p); err != nil && !isShutdownStorageErr(err) {
			m.log.Printf("shutdown save %s: %v", actorID, err)
		}
	}
}

func (m *Manager) activeProfiles() map[string]*Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*Profile, len(m.profiles))
	for id, p := range m.profiles {
		out[id] = p
	}
	return out
}

// saveProfile takes a consistent snapshot, writes it in one transaction, and
// marks the profile clean only if no mutation raced the snapshot.
func (m *Manager) saveProfile(ctx context.Context, actorID string, p *Profile) error {
	snap, err := p.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", actorID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbOpTimeout)
	defer cancel()
	if err := m.db.SaveProfile(ctx, actorID, snap.Data, snap.Rows); err != nil {
		return fmt.Errorf("save profile %s: %w", actorID, err)
	}

	p.MarkCleanIf(snap.Revision)
	return nil
}

func isShutdownStorageErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is closed") || strings.Contains(msg, "DBMOVED")
}
