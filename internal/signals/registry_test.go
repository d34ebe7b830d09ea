package signals

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"sisas/domain/core"
	"sisas/domain/signal"
)

func pack(id, scope string, kind signal.Kind) *signal.Pack {
	p := &signal.Pack{
		ID:         core.PackID(id),
		Version:    "v1",
		SourceHash: core.PackHash("cafe01"),
		Scope:      scope,
		Kind:       kind,
	}
	switch kind {
	case signal.KindContext:
		p.Context = &signal.ContextPayload{Patterns: []string{"budget"}}
	case signal.KindScoring:
		p.Scoring = &signal.ScoringPayload{Modality: "evidence_heavy", Threshold: 0.7}
	case signal.KindAssembly:
		p.Assembly = &signal.AssemblyPayload{Weights: map[string]float64{"Q-001": 2}}
	}
	return p
}

func TestNewRegistry_Lookups(t *testing.T) {
	r, err := NewRegistry([]*signal.Pack{
		pack("ctx-pa01", "PA-01", signal.KindContext),
		pack("score-q1", "Q-001", signal.KindScoring),
		pack("asm-dim", "dimension", signal.KindAssembly),
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if r.ContextPack("PA-01") == nil {
		t.Error("Context pack lookup failed")
	}
	if r.ScoringPack(core.QuestionID("Q-001")) == nil {
		t.Error("Scoring pack lookup failed")
	}
	if r.AssemblyPack("dimension") == nil {
		t.Error("Assembly pack lookup failed")
	}

	// Misses return nil so callers can fall back.
	if r.ContextPack("PA-99") != nil {
		t.Error("Expected nil for unknown scope")
	}
	if r.ScoringPack(core.QuestionID("Q-999")) != nil {
		t.Error("Expected nil for unknown question")
	}
}

func TestNewRegistry_RejectsDuplicateScope(t *testing.T) {
	_, err := NewRegistry([]*signal.Pack{
		pack("first", "PA-01", signal.KindContext),
		pack("second", "PA-01", signal.KindContext),
	})
	if err == nil {
		t.Error("Expected duplicate scope rejection")
	}

	// The same scope across different kinds is fine.
	_, err = NewRegistry([]*signal.Pack{
		pack("ctx", "Q-001", signal.KindContext),
		pack("score", "Q-001", signal.KindScoring),
	})
	if err != nil {
		t.Errorf("Same scope across kinds should be allowed: %v", err)
	}
}

func TestNewRegistry_RejectsInvalidPack(t *testing.T) {
	bad := pack("broken", "PA-01", signal.KindScoring)
	bad.Scoring = nil
	if _, err := NewRegistry([]*signal.Pack{bad}); err == nil {
		t.Error("Expected kind/payload mismatch rejection")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	for _, p := range []*signal.Pack{
		pack("ctx-pa01", "PA-01", signal.KindContext),
		pack("asm-cluster", "cluster", signal.KindAssembly),
	} {
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, string(p.ID)+".json"), raw, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Non-JSON files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if r.ContextPack("PA-01") == nil {
		t.Error("Loaded context pack not found")
	}
	if r.AssemblyPack("cluster") == nil {
		t.Error("Loaded assembly pack not found")
	}
}

func TestLoadDir_MissingDir(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "absent"), nil); err == nil {
		t.Error("Expected error for missing directory")
	}
}
