// Package tracks loads per-track progression config and precomputes the
// level tables the hot path reads. A Set is immutable once built; reloads
// build a whole new Set and swap it through a Provider.
package tracks

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// XPUnreachable marks a level whose requirement could not be computed
// (malformed curve). Such a level can never be reached.
const XPUnreachable = int64(math.MaxInt64)

// Evaluator resolves a formula string to a value for one level. It is
// supplied by the embedding environment; tracks never parses formulas itself.
type Evaluator func(formula string, level int) (float64, error)

// Curve describes one per-level value series. Formula (resolved through the
// injected Evaluator) wins over the structured parameters; otherwise the
// value at level L is Base * Growth^(L-1) + PerLevel * L (Growth 0 drops the
// geometric term).
type Curve struct {
	Formula  string  `yaml:"formula"`
	Base     float64 `yaml:"base"`
	Growth   float64 `yaml:"growth"`
	PerLevel float64 `yaml:"per_level"`
}

func (c Curve) valueAt(level int, eval Evaluator) (float64, error) {
	if c.Formula != "" {
		if eval == nil {
			return 0, fmt.Errorf("formula %q: no evaluator", c.Formula)
		}
		return eval(c.Formula, level)
	}
	v := 0.0
	if c.Growth != 0 {
		v = c.Base * math.Pow(c.Growth, float64(level-1))
	} else {
		v = c.Base
	}
	return v + c.PerLevel*float64(level), nil
}

type fileConfig struct {
	DisplayName          string   `yaml:"display_name"`
	XPPerAction          float64  `yaml:"xp_per_action"`
	StackDecayMultiplier float64  `yaml:"stack_decay_multiplier"`
	MaxActionsPerSecond  int      `yaml:"max_actions_per_second"`
	Events               []string `yaml:"events"`
	DedupePlaced         bool     `yaml:"dedupe_placed"`
	Whitelist            []string `yaml:"whitelist"`
	Blacklist            []string `yaml:"blacklist"`
	Tools                []string `yaml:"tools"`
	GrownOnly            []string `yaml:"grown_only"`
	XPReq                Curve    `yaml:"xp_req"`
	Income               Curve    `yaml:"income"`
}

// Track is one progression ladder. All fields are read-only after Load.
type Track struct {
	ID                   string
	DisplayName          string
	XPPerAction          float64
	StackDecayMultiplier float64
	MaxActionsPerSecond  int
	MaxLevel             int

	events       map[string]struct{}
	dedupePlaced bool
	whitelist    map[string]struct{}
	blacklist    map[string]struct{}
	tools        map[string]struct{}
	grownOnly    map[string]struct{}

	xpTable     []int64
	xpPrefix    []int64
	incomeTable []float64
}

// ValidSubject applies the blacklist first; an empty whitelist means no
// restriction.
func (t *Track) ValidSubject(subject string) bool {
	if _, bad := t.blacklist[subject]; bad {
		return false
	}
	if len(t.whitelist) == 0 {
		return true
	}
	_, ok := t.whitelist[subject]
	return ok
}

func (t *Track) ValidTool(tool string) bool {
	if len(t.tools) == 0 {
		return true
	}
	_, ok := t.tools[tool]
	return ok
}

// Whitelisted reports explicit whitelist membership (used to decide whether
// the recently-placed dedupe applies to a subject).
func (t *Track) Whitelisted(subject string) bool {
	if len(t.whitelist) == 0 {
		return false
	}
	_, ok := t.whitelist[subject]
	return ok
}

func (t *Track) HandlesEvent(kind string) bool {
	_, ok := t.events[kind]
	return ok
}

func (t *Track) DedupePlaced() bool { return t.dedupePlaced }

func (t *Track) RequiresGrown(subject string) bool {
	_, ok := t.grownOnly[subject]
	return ok
}

// RequiredXP returns the XP needed to advance past level, or -1 at or above
// MaxLevel (never levels up).
func (t *Track) RequiredXP(level int) int64 {
	if level >= t.MaxLevel {
		return -1
	}
	if level < 1 {
		return t.xpTable[1]
	}
	return t.xpTable[level]
}

// CumulativeXPBefore returns the total XP consumed reaching level.
func (t *Track) CumulativeXPBefore(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > t.MaxLevel {
		return t.xpPrefix[t.MaxLevel]
	}
	return t.xpPrefix[level]
}

func (t *Track) Income(level int) float64 {
	if level < 1 {
		return t.incomeTable[1]
	}
	if level > t.MaxLevel {
		return t.incomeTable[t.MaxLevel]
	}
	return t.incomeTable[level]
}

// Set is an immutable snapshot of every loaded track plus a subject reverse
// index for event dispatch.
type Set struct {
	byID      map[string]*Track
	bySubject map[string][]string
}

func (s *Set) Get(id string) *Track { return s.byID[id] }

func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TracksForSubject returns the ids of tracks whose whitelist names subject.
func (s *Set) TracksForSubject(subject string) []string {
	return s.bySubject[subject]
}

// Provider hands out the current Set. Reload swaps the whole snapshot;
// callers must dereference once per operation and never cache across one.
type Provider struct {
	v atomic.Pointer[Set]
}

func NewProvider(s *Set) *Provider {
	p := &Provider{}
	p.v.Store(s)
	return p
}

func (p *Provider) Current() *Set { return p.v.Load() }
func (p *Provider) Swap(s *Set)   { p.v.Store(s) }

// Load reads every *.yaml under dir as one track (file name = track id).
// A malformed curve poisons only that table: XP requirements become
// unreachable and income zero, with a warning, so a bad formula never takes
// the whole config down.
func Load(dir string, maxLevel int, eval Evaluator, logger *log.Logger) (*Set, error) {
	if maxLevel < 1 {
		maxLevel = 100
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read track dir: %w", err)
	}

	byID := map[string]*Track{}
	bySubject := map[string][]string{}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		id := strings.ToLower(strings.TrimSuffix(name, ".yaml"))

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read track %s: %w", id, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("track %s: %w", id, err)
		}

		t := buildTrack(id, fc, maxLevel, eval, logger)
		byID[id] = t
		for subject := range t.whitelist {
			bySubject[subject] = append(bySubject[subject], id)
		}
		if logger != nil {
			logger.Printf("loaded track: %s", id)
		}
	}

	for _, ids := range bySubject {
		sort.Strings(ids)
	}
	return &Set{byID: byID, bySubject: bySubject}, nil
}

func buildTrack(id string, fc fileConfig, maxLevel int, eval Evaluator, logger *log.Logger) *Track {
	t := &Track{
		ID:                   id,
		DisplayName:          fc.DisplayName,
		XPPerAction:          fc.XPPerAction,
		StackDecayMultiplier: fc.StackDecayMultiplier,
		MaxActionsPerSecond:  fc.MaxActionsPerSecond,
		MaxLevel:             maxLevel,
		dedupePlaced:         fc.DedupePlaced,
		events:               toSet(fc.Events),
		whitelist:            toSet(fc.Whitelist),
		blacklist:            toSet(fc.Blacklist),
		tools:                toSet(fc.Tools),
		grownOnly:            toSet(fc.GrownOnly),
	}
	if t.DisplayName == "" {
		t.DisplayName = id
	}
	if t.XPPerAction == 0 {
		t.XPPerAction = 1.0
	}
	if t.StackDecayMultiplier == 0 {
		t.StackDecayMultiplier = 1.0
	}
	if len(t.events) == 0 {
		t.events = map[string]struct{}{"BREAK": {}}
	}

	t.xpTable = make([]int64, maxLevel+2)
	for lvl := 1; lvl <= maxLevel; lvl++ {
		v, err := fc.XPReq.valueAt(lvl, eval)
		if err != nil || v < 0 || v > float64(math.MaxInt64) {
			for i := range t.xpTable {
				t.xpTable[i] = XPUnreachable
			}
			if logger != nil {
				logger.Printf("track %s: invalid xp curve, requirements unreachable: %v", id, err)
			}
			break
		}
		t.xpTable[lvl] = int64(v)
	}

	t.incomeTable = make([]float64, maxLevel+2)
	for lvl := 1; lvl <= maxLevel; lvl++ {
		v, err := fc.Income.valueAt(lvl, eval)
		if err != nil {
			for i := range t.incomeTable {
				t.incomeTable[i] = 0
			}
			if logger != nil {
				logger.Printf("track %s: invalid income curve, income zeroed: %v", id, err)
			}
			break
		}
		t.incomeTable[lvl] = math.Max(0, v)
	}

	t.xpPrefix = make([]int64, maxLevel+2)
	var acc int64
	for lvl := 2; lvl <= maxLevel; lvl++ {
		prev := t.xpTable[lvl-1]
		if prev > 0 && acc < math.MaxInt64-prev {
			acc += prev
		} else {
			acc = math.MaxInt64
		}
		t.xpPrefix[lvl] = acc
	}

	return t
}

func toSet(vals []string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v != "" {
			m[v] = struct{}{}
		}
	}
	return m
}
