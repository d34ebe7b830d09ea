// Package signal defines versioned configuration packs injected into the
// engine stages. Packs are immutable after load; the registry hands out
// shared references, never copies.
package signal

import (
	"encoding/json"
	"fmt"

	"sisas/domain/core"
)

// Kind discriminates the pack payload variants.
type Kind string

const (
	KindContext  Kind = "context"  // segmentation rules and patterns for methods
	KindScoring  Kind = "scoring"  // scoring-modality parameters per question
	KindAssembly Kind = "assembly" // aggregation weights per rollup level
)

// Source records where a signal value came from; it surfaces in every
// provenance stamp so fallbacks are auditable, never silent.
type Source string

const (
	SourcePack     Source = "pack"
	SourceFallback Source = "fallback"
	SourceNone     Source = "none"
)

// Provenance is attached to Evidence and aggregate records.
type Provenance struct {
	PackID      core.PackID   `json:"pack_id,omitempty"`
	Scope       string        `json:"scope,omitempty"`
	Version     string        `json:"version,omitempty"`
	SourceHash  core.PackHash `json:"source_hash,omitempty"`
	SisasSource Source        `json:"sisas_source"`
}

// None returns the provenance marker for evidence assembled without any
// signal pack.
func None() Provenance {
	return Provenance{SisasSource: SourceNone}
}

// Fallback returns the provenance marker for a recorded pack-lookup miss.
func Fallback(scope string) Provenance {
	return Provenance{Scope: scope, SisasSource: SourceFallback}
}

// ContextPayload carries segmentation patterns and method thresholds.
type ContextPayload struct {
	Patterns   []string           `json:"patterns,omitempty"`
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
}

// ScoringPayload overrides contract-embedded scoring defaults.
type ScoringPayload struct {
	Modality  string  `json:"modality,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// AssemblyPayload carries weights and coherence floors for one rollup
// level. Weights are keyed by child id; membership maps clusters to their
// member policy areas.
type AssemblyPayload struct {
	Weights      map[string]float64  `json:"weights,omitempty"`
	MinCoherence *float64            `json:"min_coherence,omitempty"`
	Membership   map[string][]string `json:"membership,omitempty"`
}

// Pack is one versioned signal bundle.
type Pack struct {
	ID         core.PackID   `json:"pack_id"`
	Version    string        `json:"version"`
	SourceHash core.PackHash `json:"source_hash"`
	Scope      string        `json:"scope"`
	Kind       Kind          `json:"kind"`

	Context  *ContextPayload  `json:"context,omitempty"`
	Scoring  *ScoringPayload  `json:"scoring,omitempty"`
	Assembly *AssemblyPayload `json:"assembly,omitempty"`
}

// Provenance stamps this pack's identity into a provenance record.
func (p *Pack) Provenance() Provenance {
	return Provenance{
		PackID:      p.ID,
		Scope:       p.Scope,
		Version:     p.Version,
		SourceHash:  p.SourceHash,
		SisasSource: SourcePack,
	}
}

// Validate checks required fields and kind/payload agreement.
func (p *Pack) Validate() error {
	if p.ID == "" {
		return core.NewValidationError("pack_id", "cannot be empty")
	}
	if p.Version == "" {
		return core.NewValidationError("version", "cannot be empty")
	}
	if p.SourceHash == "" {
		return core.NewValidationError("source_hash", "cannot be empty")
	}
	if p.Scope == "" {
		return core.NewValidationError("scope", "cannot be empty")
	}
	switch p.Kind {
	case KindContext:
		if p.Context == nil {
			return core.NewValidationError("context", "payload required for context pack")
		}
	case KindScoring:
		if p.Scoring == nil {
			return core.NewValidationError("scoring", "payload required for scoring pack")
		}
	case KindAssembly:
		if p.Assembly == nil {
			return core.NewValidationError("assembly", "payload required for assembly pack")
		}
	default:
		return core.NewValidationError("kind", fmt.Sprintf("unknown pack kind %q", p.Kind))
	}
	return nil
}

// DecodePack parses and validates one pack file.
func DecodePack(raw []byte) (*Pack, error) {
	var p Pack
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("signal pack decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
