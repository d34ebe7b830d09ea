// Package rollup implements the four weighted rollup stages. One generic
// aggregation algorithm serves every level; behavior differs only by
// expected cardinality and the level's aggregation-settings pack. No
// aggregator special-cases individual child identities.
package rollup

import (
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"sisas/domain/core"
	"sisas/domain/rollup"
	"sisas/domain/signal"
)

// Aggregator computes aggregates for every level, pulling weights and
// coherence floors from the signal registry view it is given.
type Aggregator struct {
	packs PackSource
	// StrictWeights makes a missing aggregation-settings pack a hard
	// failure instead of an equal-weight fallback.
	StrictWeights bool
}

// PackSource is the slice of the signal registry the aggregator needs.
type PackSource interface {
	AssemblyPack(level string) *signal.Pack
}

// NewAggregator creates an aggregator over the given pack source.
func NewAggregator(packs PackSource, strictWeights bool) *Aggregator {
	return &Aggregator{packs: packs, StrictWeights: strictWeights}
}

// Aggregate rolls up one group. expected > 0 enforces that exact child
// count; a mismatch is a structural failure, never an average over fewer
// items.
func (a *Aggregator) Aggregate(
	level rollup.Level,
	groupID string,
	children []rollup.Child,
	expected int,
) (*rollup.GroupScore, error) {
	if expected > 0 && len(children) != expected {
		return nil, core.NewCardinalityError(string(level), groupID, expected, len(children))
	}
	if len(children) == 0 {
		return nil, core.NewCardinalityError(string(level), groupID, expected, 0)
	}

	// Sort once by child id so every downstream computation is
	// independent of input order.
	sorted := make([]rollup.Child, len(children))
	copy(sorted, children)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	scores := make([]float64, len(sorted))
	for i, child := range sorted {
		if err := core.CheckScoreRange("child "+child.ID, child.Score, core.ScaleMin, core.ScaleMax); err != nil {
			return nil, err
		}
		scores[i] = child.Score
	}

	weights, minCoherence, prov, err := a.resolveSettings(level, sorted)
	if err != nil {
		return nil, err
	}

	score := stat.Mean(scores, weights)
	stddev, _ := stats.StandardDeviationPopulation(scores)
	variance := stddev * stddev

	normalized := stddev / (core.ScaleMax / 2)
	if normalized > 1 {
		normalized = 1
	}
	coherence := 1 - normalized

	weakest := sorted[0]
	allPassed := true
	for _, child := range sorted {
		if child.Score < weakest.Score {
			weakest = child
		}
		if !child.ValidationPassed {
			allPassed = false
		}
	}

	median, _ := stats.Median(scores)
	minScore, _ := stats.Min(scores)
	maxScore, _ := stats.Max(scores)

	g := &rollup.GroupScore{
		Level:            level,
		GroupID:          groupID,
		Score:            score,
		Coherence:        coherence,
		Variance:         variance,
		WeakestChildID:   weakest.ID,
		Children:         sorted,
		ValidationPassed: allPassed && coherence >= minCoherence,
		MinCoherence:     minCoherence,
		Diagnostics: rollup.Diagnostics{
			Median: median,
			Min:    minScore,
			Max:    maxScore,
			Spread: maxScore - minScore,
		},
		Provenance: prov,
		CreatedAt:  core.Now(),
	}
	if err := core.CheckScoreRange("aggregate "+groupID, g.Score, core.ScaleMin, core.ScaleMax); err != nil {
		return nil, err
	}
	if err := g.Stamp(); err != nil {
		return nil, err
	}
	return g, nil
}

// resolveSettings returns per-child weights (aligned to the sorted child
// slice), the level's min-coherence floor, and the provenance describing
// where both came from.
func (a *Aggregator) resolveSettings(
	level rollup.Level,
	children []rollup.Child,
) ([]float64, float64, signal.Provenance, error) {
	pack := a.packs.AssemblyPack(string(level))
	if pack == nil || pack.Assembly == nil {
		if a.StrictWeights {
			return nil, 0, signal.Provenance{}, core.ErrSignalPackMissing
		}
		// Documented fallback: equal weights, recorded in provenance.
		weights := make([]float64, len(children))
		for i := range weights {
			weights[i] = 1
		}
		return weights, rollup.DefaultMinCoherence, signal.Fallback(string(level)), nil
	}

	weights := make([]float64, len(children))
	for i, child := range children {
		if w, ok := pack.Assembly.Weights[child.ID]; ok {
			weights[i] = w
		} else {
			weights[i] = 1
		}
	}
	minCoherence := rollup.DefaultMinCoherence
	if pack.Assembly.MinCoherence != nil {
		minCoherence = *pack.Assembly.MinCoherence
	}
	return weights, minCoherence, pack.Provenance(), nil
}
