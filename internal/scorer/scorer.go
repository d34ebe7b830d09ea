// Package scorer converts validated Evidence into a ScoredResult using
// the question's scoring modality, a closed family of weighted
// combinations over the Elements/Similarity/Patterns sub-scores.
package scorer

import (
	"fmt"
	"math"

	"sisas/domain/contract"
	"sisas/domain/core"
	"sisas/domain/evidence"
	"sisas/domain/signal"
)

// Failure codes emitted when a modality's threshold is not reached.
const (
	CodeInsufficientEvidence   = "INSUFFICIENT_EVIDENCE"
	CodeInsufficientSimilarity = "INSUFFICIENT_SIMILARITY"
	CodeInsufficientPatterns   = "INSUFFICIENT_PATTERNS"
)

type combineKind int

const (
	combineWeighted combineKind = iota
	combineMax
	combineMin
)

// Modality is one entry of the closed scoring family.
type Modality struct {
	Name        string
	Kind        combineKind
	WE, WS, WP  float64
	Threshold   float64
	FailureCode string
}

var modalities = map[string]Modality{
	"weighted_balanced": {Name: "weighted_balanced", WE: 0.4, WS: 0.3, WP: 0.3, Threshold: 0.65, FailureCode: CodeInsufficientEvidence},
	"evidence_heavy":    {Name: "evidence_heavy", WE: 0.5, WS: 0.25, WP: 0.25, Threshold: 0.70, FailureCode: CodeInsufficientEvidence},
	"similarity_heavy":  {Name: "similarity_heavy", WE: 0.25, WS: 0.5, WP: 0.25, Threshold: 0.60, FailureCode: CodeInsufficientSimilarity},
	"pattern_heavy":     {Name: "pattern_heavy", WE: 0.25, WS: 0.25, WP: 0.5, Threshold: 0.60, FailureCode: CodeInsufficientPatterns},
	"conservative_max":  {Name: "conservative_max", Kind: combineMax, Threshold: 0.75, FailureCode: CodeInsufficientEvidence},
	"strict_min":        {Name: "strict_min", Kind: combineMin, Threshold: 0.55, FailureCode: CodeInsufficientEvidence},
}

// Lookup resolves a modality by name.
func Lookup(name string) (Modality, bool) {
	m, ok := modalities[name]
	return m, ok
}

// Score applies the resolved modality. The scoring pack, when present,
// overrides the contract-embedded modality name and threshold and stamps
// its source hash into the result. An abort-triggering validation forces
// a zero score for every modality; that is the partial-failure policy,
// not an error.
func Score(
	ev *evidence.Evidence,
	validation *evidence.ValidationResult,
	c *contract.Contract,
	pack *signal.Pack,
) (evidence.ScoredResult, error) {
	name := c.Modality
	var sourceHash core.PackHash
	thresholdOverride := 0.0
	if pack != nil && pack.Scoring != nil {
		if pack.Scoring.Modality != "" {
			name = pack.Scoring.Modality
		}
		thresholdOverride = pack.Scoring.Threshold
		sourceHash = pack.SourceHash
	}

	modality, ok := Lookup(name)
	if !ok {
		return evidence.ScoredResult{}, fmt.Errorf("unknown scoring modality %q", name)
	}
	threshold := modality.Threshold
	if thresholdOverride > 0 {
		threshold = thresholdOverride
	}

	result := evidence.ScoredResult{
		QuestionID:       ev.QuestionID,
		Modality:         modality.Name,
		Threshold:        threshold,
		SignalSourceHash: sourceHash,
	}

	if validation.AbortTriggered {
		result.Aborted = true
		result.Passed = false
		result.FailureCode = validation.EmitCode
		if result.FailureCode == "" {
			result.FailureCode = modality.FailureCode
		}
		return result, nil
	}

	e, s, p := ev.SubScores()
	var raw float64
	switch modality.Kind {
	case combineMax:
		raw = math.Max(e, math.Max(s, p))
	case combineMin:
		raw = math.Min(e, math.Min(s, p))
	default:
		raw = modality.WE*e + modality.WS*s + modality.WP*p
	}
	if err := core.CheckScoreRange("raw_score", raw, 0, 1); err != nil {
		return evidence.ScoredResult{}, err
	}

	result.RawScore = raw
	result.Passed = raw >= threshold

	adjusted := raw * core.ScaleMax
	if !result.Passed {
		result.FailureCode = modality.FailureCode
		if c.NAPolicy.Mode == "penalize" {
			adjusted = math.Max(core.ScaleMin, adjusted-c.NAPolicy.Penalty)
		}
	}
	if err := core.CheckScoreRange("adjusted_score", adjusted, core.ScaleMin, core.ScaleMax); err != nil {
		return evidence.ScoredResult{}, err
	}
	result.AdjustedScore = adjusted
	return result, nil
}
