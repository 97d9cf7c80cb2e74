package jobs

import (
	"encoding/json"
	"sync"
	"time"
)

// TenureMaxDays caps the membership bonus: one percent per day of
// uninterrupted membership, saturating at +10%.
const TenureMaxDays = 10

// TrackRow is the flattened (level, xp) projection persisted per track for
// ranking queries.
type TrackRow struct {
	TrackID string
	Level   int
	XP      float64
}

// Profile holds one actor's live progression state. Every compound
// read-modify-write goes through the profile's own mutex; the revision
// counter lets saves detect mutations that raced a snapshot.
type Profile struct {
	mu        sync.Mutex
	levels    map[string]int
	xp        map[string]float64
	joined    map[string]struct{}
	joinedDay map[string]int64

	dirty    bool
	revision uint64
}

type profileJSON struct {
	Levels    map[string]int     `json:"levels"`
	XP        map[string]float64 `json:"xp"`
	Joined    []string           `json:"joined"`
	JoinedDay map[string]int64   `json:"joined_day"`
}

func NewProfile() *Profile {
	return &Profile{
		levels:    map[string]int{},
		xp:        map[string]float64{},
		joined:    map[string]struct{}{},
		joinedDay: map[string]int64{},
	}
}

// DecodeProfile restores a serialized profile. Older blobs may miss the
// joined set (every known track counts as joined) or join days (filled with
// today so tenure restarts rather than over-crediting).
func DecodeProfile(data []byte, today int64) (*Profile, error) {
	var pj profileJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, err
	}
	p := NewProfile()
	for track, lvl := range pj.Levels {
		p.levels[track] = lvl
	}
	for track, x := range pj.XP {
		p.xp[track] = x
	}
	if pj.Joined != nil {
		for _, track := range pj.Joined {
			p.joined[track] = struct{}{}
		}
	} else {
		for track := range p.levels {
			p.joined[track] = struct{}{}
		}
	}
	for track, day := range pj.JoinedDay {
		p.joinedDay[track] = day
	}
	for track := range p.joined {
		if _, ok := p.joinedDay[track]; !ok {
			p.joinedDay[track] = today
		}
	}
	return p, nil
}

// EpochDay is the day-granularity timestamp used for tenure.
func EpochDay(t time.Time) int64 {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func (p *Profile) touchLocked() {
	p.dirty = true
	p.revision++
}

// Join adds the actor to a track, resetting the tenure basis. Returns false
// if already joined.
func (p *Profile) Join(track string, today int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.joined[track]; ok {
		return false
	}
	if _, ok := p.levels[track]; !ok {
		p.levels[track] = 1
	}
	if _, ok := p.xp[track]; !ok {
		p.xp[track] = 0
	}
	p.joined[track] = struct{}{}
	p.joinedDay[track] = today
	p.touchLocked()
	return true
}

// Leave drops track membership. Levels and XP are kept; tenure resets.
func (p *Profile) Leave(track string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.joined[track]; !ok {
		return false
	}
	delete(p.joined, track)
	delete(p.joinedDay, track)
	p.touchLocked()
	return true
}

func (p *Profile) IsJoined(track string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.joined[track]
	return ok
}

func (p *Profile) JoinedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.joined)
}

func (p *Profile) JoinedTracks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.joined))
	for track := range p.joined {
		out = append(out, track)
	}
	return out
}

func (p *Profile) Level(track string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lvl, ok := p.levels[track]; ok {
		return lvl
	}
	return 1
}

func (p *Profile) XP(track string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.xp[track]
}

func (p *Profile) tenureBonusPercentLocked(track string, today int64) int {
	if _, ok := p.joined[track]; !ok {
		return 0
	}
	start, ok := p.joinedDay[track]
	if !ok || start <= 0 {
		return 0
	}
	days := today - start
	if days < 0 {
		days = 0
	}
	if days > TenureMaxDays {
		days = TenureMaxDays
	}
	return int(days)
}

func (p *Profile) TenureBonusPercent(track string, today int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tenureBonusPercentLocked(track, today)
}

func (p *Profile) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// RewardOutcome reports what a reward application decided while the profile
// lock was held. Level is the level the income was computed against (before
// any level-up).
type RewardOutcome struct {
	Level      int
	TenureMult float64
	Leveled    bool
	NewLevel   int
}

// ApplyReward adds gained XP and performs at most one level-up against the
// supplied requirement table, consuming exactly the required XP. requiredXP
// returning -1 means max level. Returns false if the actor is not joined.
func (p *Profile) ApplyReward(track string, gainedXP float64, today int64, requiredXP func(level int) int64) (RewardOutcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.joined[track]; !ok {
		return RewardOutcome{}, false
	}
	if _, ok := p.levels[track]; !ok {
		return RewardOutcome{}, false
	}

	p.xp[track] += gainedXP

	level := p.levels[track]
	if level < 1 {
		level = 1
	}
	out := RewardOutcome{
		Level:      level,
		TenureMult: 1.0 + float64(p.tenureBonusPercentLocked(track, today))/100.0,
		NewLevel:   level,
	}

	req := requiredXP(level)
	if req != -1 && p.xp[track] >= float64(req) {
		out.Leveled = true
		out.NewLevel = level + 1
		p.levels[track] = out.NewLevel
		p.xp[track] -= float64(req)
	}

	p.touchLocked()
	return out, true
}

// ProfileSnapshot is a consistent view taken under the profile lock for one
// durable write.
type ProfileSnapshot struct {
	Revision uint64
	Data     []byte
	Rows     []TrackRow
}

func (p *Profile) Snapshot() (ProfileSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pj := profileJSON{
		Levels:    make(map[string]int, len(p.levels)),
		XP:        make(map[string]float64, len(p.xp)),
		Joined:    make([]string, 0, len(p.joined)),
		JoinedDay: make(map[string]int64, len(p.joinedDay)),
	}
	for track, lvl := range p.levels {
		pj.Levels[track] = lvl
	}
	for track, x := range p.xp {
		pj.XP[track] = x
	}
	for track := range p.joined {
		pj.Joined = append(pj.Joined, track)
	}
	for track, day := range p.joinedDay {
		pj.JoinedDay[track] = day
	}

	data, err := json.Marshal(pj)
	if err != nil {
		return ProfileSnapshot{}, err
	}

	rows := make([]TrackRow, 0, len(p.levels))
	for track, lvl := range p.levels {
		rows = append(rows, TrackRow{TrackID: track, Level: lvl, XP: p.xp[track]})
	}

	return ProfileSnapshot{Revision: p.revision, Data: data, Rows: rows}, nil
}

// MarkCleanIf clears the dirty flag only when no mutation landed since the
// snapshot at rev was taken.
func (p *Profile) MarkCleanIf(rev uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.revision != rev {
		return false
	}
	p.dirty = false
	return true
}

// Revision is exposed for tests and diagnostics.
func (p *Profile) Revision() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revision
}
