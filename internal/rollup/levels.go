package rollup

import (
	"sisas/domain/core"
	"sisas/domain/rollup"
)

// AggregateDimension rolls exactly five question scores into one
// DimensionScore.
func (a *Aggregator) AggregateDimension(id core.DimensionID, children []rollup.Child) (*rollup.GroupScore, error) {
	return a.Aggregate(rollup.LevelDimension, id.String(), children, rollup.QuestionsPerDimension)
}

// AggregateArea rolls exactly six dimension scores into one AreaScore.
func (a *Aggregator) AggregateArea(id core.AreaID, children []rollup.Child) (*rollup.GroupScore, error) {
	return a.Aggregate(rollup.LevelArea, id.String(), children, rollup.DimensionsPerArea)
}

// AggregateCluster rolls a cluster's declared member areas into one
// ClusterScore; expected comes from the membership map, not a constant.
func (a *Aggregator) AggregateCluster(id core.ClusterID, children []rollup.Child, expected int) (*rollup.GroupScore, error) {
	return a.Aggregate(rollup.LevelCluster, id.String(), children, expected)
}

// AggregateMacro combines exactly the four cluster scores into the
// MacroScore.
func (a *Aggregator) AggregateMacro(children []rollup.Child) (*rollup.GroupScore, error) {
	return a.Aggregate(rollup.LevelMacro, "macro", children, rollup.ClustersPerMacro)
}
