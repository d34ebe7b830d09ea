// Package rollup defines the aggregate score types for the four rollup
// levels and the run manifest that accounts for every failure.
package rollup

import (
	"sisas/domain/core"
	"sisas/domain/signal"
)

// Level names one rollup stage.
type Level string

const (
	LevelDimension Level = "dimension"
	LevelArea      Level = "policy_area"
	LevelCluster   Level = "cluster"
	LevelMacro     Level = "macro"
)

// Fixed child cardinalities. Clusters carry declared memberships instead
// of a fixed count.
const (
	QuestionsPerDimension = 5
	DimensionsPerArea     = 6
	ClustersPerMacro      = 4
)

// DefaultMinCoherence applies when the level's assembly pack does not
// declare a floor.
const DefaultMinCoherence = 0.5

// Child is one scored input to an aggregate.
type Child struct {
	ID               string  `json:"id"`
	Score            float64 `json:"score"`
	ValidationPassed bool    `json:"validation_passed"`
}

// Diagnostics are descriptive statistics over the child scores, carried
// alongside every aggregate for audit.
type Diagnostics struct {
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Spread float64 `json:"spread"`
}

// GroupScore is the rolled-up result at any level: DimensionScore,
// AreaScore, ClusterScore, and MacroScore share this shape, discriminated
// by Level.
type GroupScore struct {
	Level            Level             `json:"level"`
	GroupID          string            `json:"group_id"`
	Score            float64           `json:"score"`
	Coherence        float64           `json:"coherence"`
	Variance         float64           `json:"variance"`
	WeakestChildID   string            `json:"weakest_child_id"`
	Children         []Child           `json:"children"`
	ValidationPassed bool              `json:"validation_passed"`
	MinCoherence     float64           `json:"min_coherence"`
	Diagnostics      Diagnostics       `json:"diagnostics"`
	Provenance       signal.Provenance `json:"signal_provenance"`
	RecordHash       core.RecordHash   `json:"record_hash"`
	CreatedAt        core.Timestamp    `json:"created_at"`
}

// Stamp computes and stores the record hash over the aggregate content,
// excluding the stamp itself and the creation timestamp.
func (g *GroupScore) Stamp() error {
	g.RecordHash = ""
	h, err := core.CanonicalHash(struct {
		Level            Level             `json:"level"`
		GroupID          string            `json:"group_id"`
		Score            float64           `json:"score"`
		Coherence        float64           `json:"coherence"`
		Variance         float64           `json:"variance"`
		WeakestChildID   string            `json:"weakest_child_id"`
		Children         []Child           `json:"children"`
		ValidationPassed bool              `json:"validation_passed"`
		Provenance       signal.Provenance `json:"signal_provenance"`
	}{g.Level, g.GroupID, g.Score, g.Coherence, g.Variance, g.WeakestChildID,
		g.Children, g.ValidationPassed, g.Provenance})
	if err != nil {
		return err
	}
	g.RecordHash = core.RecordHash(h)
	return nil
}
