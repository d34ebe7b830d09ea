package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/semaphore"

	"sisas/domain/contract"
	"sisas/domain/core"
	"sisas/domain/evidence"
	"sisas/domain/rollup"
	"sisas/domain/signal"
	apperrors "sisas/internal/errors"
	irollup "sisas/internal/rollup"
)

// RunResult is one complete evaluation: every question record, every
// aggregate, and the manifest accounting for all failures.
type RunResult struct {
	RunID      core.RunID
	Records    map[core.QuestionID]*evidence.QuestionRecord
	Dimensions map[core.DimensionID]*rollup.GroupScore
	Areas      map[core.AreaID]*rollup.GroupScore
	Clusters   map[core.ClusterID]*rollup.GroupScore
	Macro      *rollup.GroupScore
	Manifest   *rollup.RunManifest
}

type questionOutcome struct {
	id     core.QuestionID
	record *evidence.QuestionRecord
	err    error
}

// RunAll executes every question pipeline on a bounded worker pool, then
// rolls the scored results up through dimension, policy-area, cluster,
// and macro levels. The run always finishes with a partial result set
// plus an explicit manifest; it never silently drops a failure into a
// passing aggregate.
func (e *Engine) RunAll(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunID:      core.RunID(core.NewID()),
		Records:    make(map[core.QuestionID]*evidence.QuestionRecord),
		Dimensions: make(map[core.DimensionID]*rollup.GroupScore),
		Areas:      make(map[core.AreaID]*rollup.GroupScore),
		Clusters:   make(map[core.ClusterID]*rollup.GroupScore),
		Manifest: &rollup.RunManifest{
			StartedAt: core.Now(),
		},
	}
	result.Manifest.RunID = result.RunID

	identities, loadFailures, err := e.contracts.Identities()
	if err != nil {
		return nil, err
	}
	for id, ferr := range loadFailures {
		result.Manifest.FailedQuestions = append(result.Manifest.FailedQuestions,
			questionFailure(id, ferr))
	}

	topology, err := rollup.BuildTopology(identities)
	if err != nil {
		return nil, fmt.Errorf("building topology: %w", err)
	}
	if e.signals != nil {
		if pack := e.signals.AssemblyPack(string(rollup.LevelCluster)); pack != nil &&
			pack.Assembly != nil && len(pack.Assembly.Membership) > 0 {
			topology.ApplyClusterMembership(pack.Assembly.Membership)
		}
	}
	result.Manifest.TopologyHash = topology.Hash
	result.Manifest.TotalQuestions = len(identities) + len(loadFailures)

	e.runQuestions(ctx, identities, result)
	e.rollUp(topology, result)

	result.Manifest.FinishedAt = core.Now()
	sortManifest(result.Manifest)
	if err := result.Manifest.Stamp(); err != nil {
		return nil, err
	}

	for _, sink := range e.sinks {
		if err := sink.WriteManifest(ctx, result.Manifest); err != nil {
			e.log.Error("[Engine] %v", apperrors.SinkFailure("manifest", err))
		}
	}

	e.mu.Lock()
	e.lastRun = result
	e.mu.Unlock()

	e.log.Info("[Engine] run %s finished: %d/%d questions, %d aggregate failures",
		result.RunID, result.Manifest.CompletedCount, result.Manifest.TotalQuestions,
		len(result.Manifest.FailedAggregates))
	return result, nil
}

// MacroResult returns the macro score and manifest of the last completed
// run.
func (e *Engine) MacroResult() (*rollup.GroupScore, *rollup.RunManifest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastRun == nil {
		return nil, nil, errors.New("no completed run")
	}
	return e.lastRun.Macro, e.lastRun.Manifest, nil
}

// runQuestions fans the pipelines out over a weighted semaphore and
// collects outcomes on a single channel, so the accumulator has exactly
// one owner. Cancellation stops not-yet-started pipelines; in-flight
// ones finish or hit their method timeouts.
func (e *Engine) runQuestions(ctx context.Context, identities []contract.Identity, result *RunResult) {
	sem := semaphore.NewWeighted(int64(e.workers))
	outcomes := make(chan questionOutcome)

	launched := 0
	go func() {
		for _, identity := range identities {
			id := identity.QuestionID
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes <- questionOutcome{id: id, err: fmt.Errorf("pipeline not started: %w", err)}
				continue
			}
			go func(id core.QuestionID) {
				defer sem.Release(1)
				record, err := e.RunQuestion(ctx, id)
				outcomes <- questionOutcome{id: id, record: record, err: err}
			}(id)
		}
	}()

	for launched < len(identities) {
		outcome := <-outcomes
		launched++
		if outcome.err != nil {
			result.Manifest.FailedQuestions = append(result.Manifest.FailedQuestions,
				questionFailure(outcome.id, outcome.err))
			continue
		}
		result.Records[outcome.id] = outcome.record
		result.Manifest.CompletedCount++
		if outcome.record.Score.Aborted {
			result.Manifest.ZeroScored = append(result.Manifest.ZeroScored, outcome.id)
		}
	}
}

// rollUp computes the four levels bottom-up. Each aggregate waits only on
// its own children; a structural failure excludes that branch from its
// parent and is recorded, while sibling branches proceed.
func (e *Engine) rollUp(topology *rollup.Topology, result *RunResult) {
	agg := irollup.NewAggregator(packSource{e}, e.strictWeights)

	for dimID, questions := range topology.Dimensions {
		var children []rollup.Child
		for _, qid := range questions {
			record, ok := result.Records[qid]
			if !ok {
				continue // failed question, manifest already has it
			}
			children = append(children, rollup.Child{
				ID:               qid.String(),
				Score:            record.Score.AdjustedScore,
				ValidationPassed: record.Score.Passed,
			})
		}
		g, err := agg.AggregateDimension(dimID, children)
		if err != nil {
			e.recordAggregateFailure(result, rollup.LevelDimension, dimID.String(), err)
			continue
		}
		result.Dimensions[dimID] = g
	}

	for areaID, dims := range topology.Areas {
		var children []rollup.Child
		for _, dimID := range dims {
			if g, ok := result.Dimensions[dimID]; ok {
				children = append(children, rollup.Child{
					ID: dimID.String(), Score: g.Score, ValidationPassed: g.ValidationPassed,
				})
			}
		}
		g, err := agg.AggregateArea(areaID, children)
		if err != nil {
			e.recordAggregateFailure(result, rollup.LevelArea, areaID.String(), err)
			continue
		}
		result.Areas[areaID] = g
	}

	for clusterID, areas := range topology.Clusters {
		var children []rollup.Child
		for _, areaID := range areas {
			if g, ok := result.Areas[areaID]; ok {
				children = append(children, rollup.Child{
					ID: areaID.String(), Score: g.Score, ValidationPassed: g.ValidationPassed,
				})
			}
		}
		g, err := agg.AggregateCluster(clusterID, children, len(areas))
		if err != nil {
			e.recordAggregateFailure(result, rollup.LevelCluster, clusterID.String(), err)
			continue
		}
		result.Clusters[clusterID] = g
	}

	var children []rollup.Child
	for _, clusterID := range topology.ClusterIDs() {
		if g, ok := result.Clusters[clusterID]; ok {
			children = append(children, rollup.Child{
				ID: clusterID.String(), Score: g.Score, ValidationPassed: g.ValidationPassed,
			})
		}
	}
	macro, err := agg.AggregateMacro(children)
	if err != nil {
		e.recordAggregateFailure(result, rollup.LevelMacro, "macro", err)
	} else {
		result.Macro = macro
	}

	e.writeAggregates(result)
}

func (e *Engine) writeAggregates(result *RunResult) {
	ctx := context.Background()
	write := func(g *rollup.GroupScore) {
		for _, sink := range e.sinks {
			if err := sink.WriteAggregate(ctx, g); err != nil {
				e.log.Error("[Engine] %s/%s: %v", g.Level, g.GroupID,
					apperrors.SinkFailure("aggregate", err))
			}
		}
	}
	for _, g := range result.Dimensions {
		write(g)
	}
	for _, g := range result.Areas {
		write(g)
	}
	for _, g := range result.Clusters {
		write(g)
	}
	if result.Macro != nil {
		write(result.Macro)
	}
}

func (e *Engine) recordAggregateFailure(result *RunResult, level rollup.Level, groupID string, err error) {
	kind := rollup.FailInternal
	coded := apperrors.Wrap(err, fmt.Sprintf("aggregate %s/%s failed", level, groupID))
	switch {
	case core.IsCardinalityError(err):
		kind = rollup.FailCardinality
		coded = apperrors.WithCode(apperrors.CodeCardinality, err)
	case errors.Is(err, core.ErrSignalPackMissing):
		kind = rollup.FailSignalPack
		coded = apperrors.WithCode(apperrors.CodeSignalMissing, err)
	}
	e.log.Warn("[Engine] aggregate %s/%s failed (%s): %v",
		level, groupID, apperrors.GetCode(coded), err)
	result.Manifest.FailedAggregates = append(result.Manifest.FailedAggregates,
		rollup.AggregateFailure{Level: level, GroupID: groupID, Kind: kind, Message: err.Error()})
}

func questionFailure(id core.QuestionID, err error) rollup.QuestionFailure {
	kind := rollup.FailInternal
	coded := apperrors.Wrap(err, fmt.Sprintf("question %s pipeline failed", id))
	switch {
	case core.IsIntegrityError(err):
		kind = rollup.FailIntegrity
		coded = apperrors.Integrity(id.String(), err)
	case core.IsContractLoadError(err):
		kind = rollup.FailContractLoad
		coded = apperrors.ContractLoad(id.String(), err)
	}
	return rollup.QuestionFailure{
		QuestionID: id,
		Kind:       kind,
		Message:    coded.Error(),
		ScoredZero: false,
	}
}

func sortManifest(m *rollup.RunManifest) {
	sort.Slice(m.ZeroScored, func(i, j int) bool { return m.ZeroScored[i] < m.ZeroScored[j] })
	sort.Slice(m.FailedQuestions, func(i, j int) bool {
		return m.FailedQuestions[i].QuestionID < m.FailedQuestions[j].QuestionID
	})
	sort.Slice(m.FailedAggregates, func(i, j int) bool {
		if m.FailedAggregates[i].Level != m.FailedAggregates[j].Level {
			return m.FailedAggregates[i].Level < m.FailedAggregates[j].Level
		}
		return m.FailedAggregates[i].GroupID < m.FailedAggregates[j].GroupID
	})
}

// packSource adapts the engine's nilable registry to the aggregator.
type packSource struct{ e *Engine }

func (p packSource) AssemblyPack(level string) *signal.Pack {
	if p.e.signals == nil {
		return nil
	}
	return p.e.signals.AssemblyPack(level)
}
