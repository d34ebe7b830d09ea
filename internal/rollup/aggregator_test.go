package rollup

import (
	"errors"
	"math"
	"testing"

	"sisas/domain/core"
	"sisas/domain/rollup"
	"sisas/domain/signal"
)

// staticPacks serves a fixed pack per level; nil means a registry miss.
type staticPacks map[string]*signal.Pack

func (s staticPacks) AssemblyPack(level string) *signal.Pack { return s[level] }

func child(id string, score float64) rollup.Child {
	return rollup.Child{ID: id, Score: score, ValidationPassed: true}
}

func TestAggregateDimension_EqualWeightMean(t *testing.T) {
	agg := NewAggregator(staticPacks{}, false)

	children := []rollup.Child{
		child("Q-001", 2.8),
		child("Q-002", 2.5),
		child("Q-003", 2.05),
		child("Q-004", 0),
		child("Q-005", 0),
	}
	g, err := agg.AggregateDimension(core.DimensionID("D-01"), children)
	if err != nil {
		t.Fatalf("AggregateDimension failed: %v", err)
	}

	if math.Abs(g.Score-1.47) > 1e-12 {
		t.Errorf("Expected mean 1.47, got %g", g.Score)
	}
	if g.WeakestChildID != "Q-004" {
		t.Errorf("Expected weakest Q-004 (first of the sorted zero scores), got %s", g.WeakestChildID)
	}
	if g.Diagnostics.Min != 0 || g.Diagnostics.Max != 2.8 || math.Abs(g.Diagnostics.Spread-2.8) > 1e-12 {
		t.Errorf("Wrong diagnostics: %+v", g.Diagnostics)
	}

	// This spread is far above the coherence floor; the aggregate is
	// computed but flagged.
	if g.Coherence >= g.MinCoherence {
		t.Errorf("Expected low coherence, got %g against floor %g", g.Coherence, g.MinCoherence)
	}
	if g.ValidationPassed {
		t.Error("Low coherence must flag the aggregate")
	}
	if g.Provenance.SisasSource != signal.SourceFallback {
		t.Errorf("Pack miss must be recorded as fallback, got %s", g.Provenance.SisasSource)
	}
	if g.RecordHash == "" {
		t.Error("Aggregate not stamped")
	}
}

func TestAggregate_PermutationInvariant(t *testing.T) {
	agg := NewAggregator(staticPacks{}, false)

	forward := []rollup.Child{
		child("Q-001", 2.8), child("Q-002", 2.5), child("Q-003", 2.05),
		child("Q-004", 1.0), child("Q-005", 0.5),
	}
	shuffled := []rollup.Child{
		forward[3], forward[0], forward[4], forward[2], forward[1],
	}

	g1, err := agg.AggregateDimension(core.DimensionID("D-01"), forward)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := agg.AggregateDimension(core.DimensionID("D-01"), shuffled)
	if err != nil {
		t.Fatal(err)
	}

	if g1.Score != g2.Score {
		t.Errorf("Score depends on child order: %g vs %g", g1.Score, g2.Score)
	}
	if g1.Coherence != g2.Coherence {
		t.Errorf("Coherence depends on child order: %g vs %g", g1.Coherence, g2.Coherence)
	}
	if g1.WeakestChildID != g2.WeakestChildID {
		t.Errorf("Weakest child depends on order: %s vs %s", g1.WeakestChildID, g2.WeakestChildID)
	}
	if g1.RecordHash != g2.RecordHash {
		t.Errorf("Record hash depends on child order: %s vs %s", g1.RecordHash, g2.RecordHash)
	}
}

func TestAggregate_CardinalityEnforced(t *testing.T) {
	agg := NewAggregator(staticPacks{}, false)

	four := []rollup.Child{
		child("Q-001", 2.0), child("Q-002", 2.0), child("Q-003", 2.0), child("Q-004", 2.0),
	}
	_, err := agg.AggregateDimension(core.DimensionID("D-01"), four)
	if err == nil {
		t.Fatal("Four of five children must be a structural failure, not a mean over four")
	}
	if !core.IsCardinalityError(err) {
		t.Errorf("Expected cardinality error, got %v", err)
	}

	if _, err := agg.AggregateMacro(four[:3]); !core.IsCardinalityError(err) {
		t.Errorf("Macro expects exactly four clusters, got %v", err)
	}

	if _, err := agg.Aggregate(rollup.LevelCluster, "CL-01", nil, 0); !core.IsCardinalityError(err) {
		t.Errorf("Zero children must fail, got %v", err)
	}
}

func TestAggregate_ChildScoreRangeChecked(t *testing.T) {
	agg := NewAggregator(staticPacks{}, false)
	children := []rollup.Child{
		child("Q-001", 2.0), child("Q-002", 2.0), child("Q-003", 3.5),
		child("Q-004", 2.0), child("Q-005", 2.0),
	}
	_, err := agg.AggregateDimension(core.DimensionID("D-01"), children)
	if !errors.Is(err, core.ErrScoreOutOfRange) {
		t.Errorf("Expected score range error, got %v", err)
	}
}

func TestAggregate_PackWeights(t *testing.T) {
	minCoherence := 0.2
	packs := staticPacks{
		"policy_area": {
			ID:         core.PackID("pack-assembly-policy_area"),
			Version:    "v1",
			SourceHash: core.PackHash("beef01"),
			Scope:      "policy_area",
			Kind:       signal.KindAssembly,
			Assembly: &signal.AssemblyPayload{
				Weights:      map[string]float64{"D-01": 2, "D-02": 1},
				MinCoherence: &minCoherence,
			},
		},
	}
	agg := NewAggregator(packs, false)

	children := []rollup.Child{
		child("D-01", 3.0), child("D-02", 0.0), child("D-03", 1.5),
		child("D-04", 1.5), child("D-05", 1.5), child("D-06", 1.5),
	}
	g, err := agg.AggregateArea(core.AreaID("PA-01"), children)
	if err != nil {
		t.Fatal(err)
	}

	// D-01 weighs 2, D-02 weighs 1, the rest default to 1.
	want := (3.0*2 + 0.0*1 + 1.5 + 1.5 + 1.5 + 1.5) / 7
	if math.Abs(g.Score-want) > 1e-12 {
		t.Errorf("Expected weighted mean %g, got %g", want, g.Score)
	}
	if g.MinCoherence != 0.2 {
		t.Errorf("Pack coherence floor ignored: %g", g.MinCoherence)
	}
	if g.Provenance.SisasSource != signal.SourcePack {
		t.Errorf("Expected pack provenance, got %s", g.Provenance.SisasSource)
	}
	if g.Provenance.PackID != core.PackID("pack-assembly-policy_area") {
		t.Errorf("Wrong provenance pack id: %s", g.Provenance.PackID)
	}
}

func TestAggregate_StrictWeightsFailsOnPackMiss(t *testing.T) {
	agg := NewAggregator(staticPacks{}, true)

	children := []rollup.Child{
		child("Q-001", 2.0), child("Q-002", 2.0), child("Q-003", 2.0),
		child("Q-004", 2.0), child("Q-005", 2.0),
	}
	_, err := agg.AggregateDimension(core.DimensionID("D-01"), children)
	if !errors.Is(err, core.ErrSignalPackMissing) {
		t.Errorf("Strict mode must fail on pack miss, got %v", err)
	}
}

func TestAggregate_IdenticalChildrenFullyCoherent(t *testing.T) {
	agg := NewAggregator(staticPacks{}, false)
	children := []rollup.Child{
		child("Q-001", 2.1), child("Q-002", 2.1), child("Q-003", 2.1),
		child("Q-004", 2.1), child("Q-005", 2.1),
	}
	g, err := agg.AggregateDimension(core.DimensionID("D-01"), children)
	if err != nil {
		t.Fatal(err)
	}
	if g.Coherence != 1 {
		t.Errorf("Zero spread must be fully coherent, got %g", g.Coherence)
	}
	if g.Variance != 0 {
		t.Errorf("Expected zero variance, got %g", g.Variance)
	}
	if !g.ValidationPassed {
		t.Error("Coherent, all-passed children must pass")
	}
}

func TestAggregate_FailedChildFlagsAggregate(t *testing.T) {
	agg := NewAggregator(staticPacks{}, false)
	children := []rollup.Child{
		child("Q-001", 2.1), child("Q-002", 2.1), child("Q-003", 2.1),
		child("Q-004", 2.1),
		{ID: "Q-005", Score: 2.1, ValidationPassed: false},
	}
	g, err := agg.AggregateDimension(core.DimensionID("D-01"), children)
	if err != nil {
		t.Fatal(err)
	}
	if g.ValidationPassed {
		t.Error("A failed child must flag the aggregate even at full coherence")
	}
}
