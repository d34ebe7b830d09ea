// Package signals provides the process-wide registry of versioned signal
// packs. The registry is built once and read-only afterwards; lookups are
// pure map reads needing no locks.
package signals

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sisas/domain/core"
	"sisas/domain/signal"
	"sisas/internal"
)

// Registry resolves signal packs by scope. A miss returns nil so callers
// can fall back to contract-embedded defaults; every such fallback must
// be stamped into the resulting provenance by the caller.
type Registry struct {
	context  map[string]*signal.Pack // scope: policy area id or question id
	scoring  map[string]*signal.Pack // scope: question id
	assembly map[string]*signal.Pack // scope: rollup level name
}

// NewRegistry builds a registry from already-decoded packs.
func NewRegistry(packs []*signal.Pack) (*Registry, error) {
	r := &Registry{
		context:  make(map[string]*signal.Pack),
		scoring:  make(map[string]*signal.Pack),
		assembly: make(map[string]*signal.Pack),
	}
	for _, p := range packs {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("pack %s: %w", p.ID, err)
		}
		var byScope map[string]*signal.Pack
		switch p.Kind {
		case signal.KindContext:
			byScope = r.context
		case signal.KindScoring:
			byScope = r.scoring
		case signal.KindAssembly:
			byScope = r.assembly
		}
		if prev, ok := byScope[p.Scope]; ok {
			return nil, fmt.Errorf("duplicate %s pack for scope %q (%s and %s)",
				p.Kind, p.Scope, prev.ID, p.ID)
		}
		byScope[p.Scope] = p
	}
	return r, nil
}

// LoadPacks reads and decodes every *.json pack under dir.
func LoadPacks(dir string) ([]*signal.Pack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading signal dir %s: %w", dir, err)
	}
	var packs []*signal.Pack
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading pack %s: %w", e.Name(), err)
		}
		p, err := signal.DecodePack(raw)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", e.Name(), err)
		}
		packs = append(packs, p)
	}
	return packs, nil
}

// LoadDir reads every *.json pack under dir and builds a registry.
func LoadDir(dir string, logger *internal.Logger) (*Registry, error) {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	packs, err := LoadPacks(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("[SignalRegistry] loaded %d packs from %s", len(packs), dir)
	return NewRegistry(packs)
}

// ContextPack returns the context pack for a scope, or nil.
func (r *Registry) ContextPack(scope string) *signal.Pack {
	return r.context[scope]
}

// ScoringPack returns the scoring pack for a question, or nil.
func (r *Registry) ScoringPack(questionID core.QuestionID) *signal.Pack {
	return r.scoring[questionID.String()]
}

// AssemblyPack returns the aggregation-settings pack for a rollup level,
// or nil.
func (r *Registry) AssemblyPack(level string) *signal.Pack {
	return r.assembly[level]
}
