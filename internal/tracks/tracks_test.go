package tracks

import (
	"errors"
	"log"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeTrack(t *testing.T, dir, id, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write track: %v", err)
	}
}

func TestLoad_CurveTables(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "miner", `
display_name: Miner
xp_per_action: 1.0
max_actions_per_second: 10
whitelist: [STONE, COAL_ORE]
blacklist: [BEDROCK]
xp_req:
  base: 100
  growth: 1.085
income:
  base: 0.05
  per_level: 0.036
`)

	set, err := Load(dir, 100, nil, log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tr := set.Get("miner")
	if tr == nil {
		t.Fatalf("miner not loaded")
	}

	if got := tr.RequiredXP(1); got != 100 {
		t.Fatalf("level 1 requirement: got %d, want 100", got)
	}
	want := int64(100 * math.Pow(1.085, 9))
	if got := tr.RequiredXP(10); got != want {
		t.Fatalf("level 10 requirement: got %d, want %d", got, want)
	}
	if got := tr.RequiredXP(100); got != -1 {
		t.Fatalf("max level requirement: got %d, want -1", got)
	}

	if got := tr.CumulativeXPBefore(1); got != 0 {
		t.Fatalf("cumulative before level 1: got %d", got)
	}
	if got := tr.CumulativeXPBefore(3); got != tr.RequiredXP(1)+tr.RequiredXP(2) {
		t.Fatalf("cumulative before level 3: got %d", got)
	}

	wantIncome := 0.05 + 5*0.036
	if got := tr.Income(5); math.Abs(got-wantIncome) > 1e-9 {
		t.Fatalf("income at level 5: got %v, want %v", got, wantIncome)
	}
}

func TestLoad_SubjectRules(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "digger", `
whitelist: [STONE, DIRT]
blacklist: [STONE]
`)
	writeTrack(t, dir, "anything", `
blacklist: [TNT]
`)

	set, err := Load(dir, 10, nil, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	digger := set.Get("digger")
	if digger.ValidSubject("STONE") {
		t.Fatalf("blacklist must win over whitelist")
	}
	if !digger.ValidSubject("DIRT") {
		t.Fatalf("whitelisted subject rejected")
	}
	if digger.ValidSubject("SAND") {
		t.Fatalf("non-whitelisted subject accepted")
	}

	anything := set.Get("anything")
	if !anything.ValidSubject("SAND") {
		t.Fatalf("empty whitelist must mean no restriction")
	}
	if anything.ValidSubject("TNT") {
		t.Fatalf("blacklisted subject accepted")
	}

	ids := set.TracksForSubject("DIRT")
	if len(ids) != 1 || ids[0] != "digger" {
		t.Fatalf("reverse index: got %v", ids)
	}
}

func TestLoad_FormulaEvaluator(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "scripted", `
xp_req:
  formula: "level * 50"
income:
  base: 1
`)

	eval := func(formula string, level int) (float64, error) {
		if formula != "level * 50" {
			t.Fatalf("unexpected formula: %q", formula)
		}
		return float64(level) * 50, nil
	}

	set, err := Load(dir, 10, eval, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := set.Get("scripted").RequiredXP(4); got != 200 {
		t.Fatalf("evaluated requirement: got %d, want 200", got)
	}
}

func TestLoad_BadFormulaUsesSentinels(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "broken", `
xp_req:
  formula: "level +* 2"
income:
  formula: "level +* 2"
`)

	eval := func(string, int) (float64, error) {
		return 0, errors.New("parse error")
	}

	set, err := Load(dir, 10, eval, log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("a bad formula must not fail the load: %v", err)
	}
	tr := set.Get("broken")
	if got := tr.RequiredXP(1); got != XPUnreachable {
		t.Fatalf("expected unreachable requirement, got %d", got)
	}
	if got := tr.Income(5); got != 0 {
		t.Fatalf("expected zero income, got %v", got)
	}
}

func TestLoad_ToolRules(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "axes", `
tools: [IRON_AXE]
`)
	writeTrack(t, dir, "bare", ``)

	set, err := Load(dir, 10, nil, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Get("axes").ValidTool("IRON_PICKAXE") {
		t.Fatalf("wrong tool accepted")
	}
	if !set.Get("axes").ValidTool("IRON_AXE") {
		t.Fatalf("allowed tool rejected")
	}
	if !set.Get("bare").ValidTool("ANYTHING") {
		t.Fatalf("empty tool list must mean no restriction")
	}
}

func TestProvider_Swap(t *testing.T) {
	dir := t.TempDir()
	writeTrack(t, dir, "one", ``)
	first, err := Load(dir, 10, nil, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	p := NewProvider(first)
	if p.Current().Get("one") == nil {
		t.Fatalf("missing track before swap")
	}

	writeTrack(t, dir, "two", ``)
	second, err := Load(dir, 10, nil, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	p.Swap(second)
	if p.Current().Get("two") == nil {
		t.Fatalf("missing track after swap")
	}
}
