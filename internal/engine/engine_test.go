package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sisas/adapters/jsonfile"
	"sisas/domain/core"
	"sisas/domain/rollup"
	"sisas/domain/signal"
	"sisas/internal/contractstore"
	"sisas/internal/signals"
	"sisas/internal/testkit"
	"sisas/ports"
)

// Standard scripted sub-scores are E=0.9, S=0.6, P=0.5; under the
// default weighted_balanced modality every question scores raw 0.69,
// adjusted 2.07.
const (
	fixtureRaw      = 0.4*0.9 + 0.3*0.6 + 0.3*0.5
	fixtureAdjusted = fixtureRaw * core.ScaleMax
)

func newTestEngine(t *testing.T, dir string, registry *signals.Registry, opts Options) (*Engine, *testkit.ScriptedExecutor) {
	t.Helper()
	executor := testkit.NewScriptedExecutor()
	store := contractstore.New(dir, executor, nil)
	return New(store, registry, executor, opts), executor
}

func TestRunQuestion(t *testing.T) {
	dir := t.TempDir()
	doc := testkit.NewContractDoc("Q-001", "D-01", "PA-01", "CL-01")
	require.NoError(t, doc.Write(dir))

	eng, _ := newTestEngine(t, dir, nil, Options{})
	record, err := eng.RunQuestion(context.Background(), core.QuestionID("Q-001"))
	require.NoError(t, err)

	require.InDelta(t, fixtureRaw, record.Score.RawScore, 1e-12)
	require.InDelta(t, fixtureAdjusted, record.Score.AdjustedScore, 1e-12)
	require.True(t, record.Score.Passed)
	require.False(t, record.Score.Aborted)
	require.Equal(t, "weighted_balanced", record.Score.Modality)
	require.NotEmpty(t, record.RecordHash)

	// Every binding is traced, none missing.
	require.Len(t, record.Evidence.Trace, 4)
	for _, tr := range record.Evidence.Trace {
		require.False(t, tr.Missing, "source %s unexpectedly missing", tr.Provides)
	}

	// No registry at all: provenance is the none marker.
	require.Equal(t, signal.SourceNone, record.Provenance.SisasSource)
}

func TestRunQuestion_ContextPackFallbackRecorded(t *testing.T) {
	dir := t.TempDir()
	doc := testkit.NewContractDoc("Q-001", "D-01", "PA-01", "CL-01")
	require.NoError(t, doc.Write(dir))

	// A registry exists but has no pack for this question or area.
	registry, err := signals.NewRegistry([]*signal.Pack{
		testkit.ContextPack("PA-99", []string{"unrelated"}),
	})
	require.NoError(t, err)

	eng, _ := newTestEngine(t, dir, registry, Options{})
	record, err := eng.RunQuestion(context.Background(), core.QuestionID("Q-001"))
	require.NoError(t, err)

	require.Equal(t, signal.SourceFallback, record.Provenance.SisasSource)
	require.Equal(t, "PA-01", record.Provenance.Scope)
}

func TestRunQuestion_ScoringPackOverride(t *testing.T) {
	dir := t.TempDir()
	doc := testkit.NewContractDoc("Q-001", "D-01", "PA-01", "CL-01")
	require.NoError(t, doc.Write(dir))

	registry, err := signals.NewRegistry([]*signal.Pack{
		testkit.ScoringPack("Q-001", "strict_min", 0.45),
	})
	require.NoError(t, err)

	eng, _ := newTestEngine(t, dir, registry, Options{})
	record, err := eng.RunQuestion(context.Background(), core.QuestionID("Q-001"))
	require.NoError(t, err)

	require.Equal(t, "strict_min", record.Score.Modality)
	require.InDelta(t, 0.5, record.Score.RawScore, 1e-12)
	require.True(t, record.Score.Passed)
	require.NotEmpty(t, record.Score.SignalSourceHash)
}

func TestRunQuestion_MethodTimeoutBecomesMissingSource(t *testing.T) {
	dir := t.TempDir()
	doc := testkit.NewContractDoc("Q-001", "D-01", "PA-01", "CL-01")
	require.NoError(t, doc.Write(dir))

	eng, executor := newTestEngine(t, dir, nil, Options{MethodTimeout: 5 * time.Millisecond})
	executor.Delay = 200 * time.Millisecond

	record, err := eng.RunQuestion(context.Background(), core.QuestionID("Q-001"))
	require.NoError(t, err, "a stuck method must not fail the pipeline")

	for _, tr := range record.Evidence.Trace {
		require.True(t, tr.Missing, "timed-out source %s should be missing", tr.Provides)
		require.NotEmpty(t, tr.Error)
	}

	// Everything missing trips the no_method_output abort: scored zero.
	require.True(t, record.Score.Aborted)
	require.Zero(t, record.Score.AdjustedScore)
	require.Equal(t, "EVIDENCE_INCOMPLETE", record.Score.FailureCode)
}

func TestRunAll_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	questions, _, err := testkit.WriteTree(dir, 4, 1)
	require.NoError(t, err)
	require.Len(t, questions, 4*1*6*5)

	outDir := t.TempDir()
	sink, err := jsonfile.NewSink(outDir)
	require.NoError(t, err)

	eng, _ := newTestEngine(t, dir, nil, Options{
		Workers: 8,
		Sinks:   []ports.ResultSink{sink},
	})

	result, err := eng.RunAll(context.Background())
	require.NoError(t, err)

	require.True(t, result.Manifest.Clean(), "manifest not clean: %+v", result.Manifest)
	require.Equal(t, 120, result.Manifest.TotalQuestions)
	require.Equal(t, 120, result.Manifest.CompletedCount)
	require.Empty(t, result.Manifest.ZeroScored)
	require.NotEmpty(t, result.Manifest.TopologyHash)
	require.NotEmpty(t, result.Manifest.RecordHash)

	require.Len(t, result.Records, 120)
	require.Len(t, result.Dimensions, 24)
	require.Len(t, result.Areas, 4)
	require.Len(t, result.Clusters, 4)
	require.NotNil(t, result.Macro)

	// Identical question scores roll up unchanged through every level.
	require.InDelta(t, fixtureAdjusted, result.Macro.Score, 1e-9)
	require.InDelta(t, 1.0, result.Macro.Coherence, 1e-9)
	require.True(t, result.Macro.ValidationPassed)
	require.Equal(t, rollup.LevelMacro, result.Macro.Level)
	require.Len(t, result.Macro.Children, 4)

	// MacroResult serves the stored run.
	macro, manifest, err := eng.MacroResult()
	require.NoError(t, err)
	require.Equal(t, result.Macro.RecordHash, macro.RecordHash)
	require.Equal(t, result.Manifest.RunID, manifest.RunID)

	// The sink persisted records, aggregates, and the manifest.
	entries, err := os.ReadDir(filepath.Join(outDir, "questions"))
	require.NoError(t, err)
	require.Len(t, entries, 120)
	aggregates, err := os.ReadDir(filepath.Join(outDir, "aggregates"))
	require.NoError(t, err)
	require.Len(t, aggregates, 24+4+4+1)
	_, err = os.Stat(filepath.Join(outDir, "manifest_"+result.RunID.String()+".json"))
	require.NoError(t, err)
}

func TestRunAll_AbortedQuestionScoresZeroButStaysInRollup(t *testing.T) {
	dir := t.TempDir()
	questions, _, err := testkit.WriteTree(dir, 4, 1)
	require.NoError(t, err)

	eng, executor := newTestEngine(t, dir, nil, Options{Workers: 4})

	// One question finds no elements: missing_required_element aborts it.
	target := questions[0]
	executor.SetOutput(target+"/ElementExtractor.extract", ports.RawOutput{
		Value: []interface{}{}, Confidence: 0.9,
	})

	result, err := eng.RunAll(context.Background())
	require.NoError(t, err)

	// A zero-scored question is not a run failure.
	require.True(t, result.Manifest.Clean())
	require.Equal(t, []core.QuestionID{core.QuestionID(target)}, result.Manifest.ZeroScored)
	require.Equal(t, 120, result.Manifest.CompletedCount)

	record := result.Records[core.QuestionID(target)]
	require.NotNil(t, record)
	require.True(t, record.Score.Aborted)
	require.Zero(t, record.Score.AdjustedScore)

	// The zero participates in its dimension mean: (4*2.07 + 0) / 5.
	dim := result.Dimensions[core.DimensionID("PA-01-01-D1")]
	require.NotNil(t, dim)
	require.InDelta(t, fixtureAdjusted*4/5, dim.Score, 1e-9)
	require.Equal(t, target, dim.WeakestChildID)
	require.False(t, dim.ValidationPassed)

	require.NotNil(t, result.Macro)
}

func TestRunAll_CorruptContractExcludesBranch(t *testing.T) {
	dir := t.TempDir()
	questions, _, err := testkit.WriteTree(dir, 4, 1)
	require.NoError(t, err)

	// Tamper one contract so its hash no longer matches.
	target := questions[0]
	path := filepath.Join(dir, target+".json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := bytes.Replace(raw, []byte(`"min_count":1`), []byte(`"min_count":2`), 1)
	require.NotEqual(t, raw, tampered)
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	eng, _ := newTestEngine(t, dir, nil, Options{Workers: 4})
	result, err := eng.RunAll(context.Background())
	require.NoError(t, err)

	require.False(t, result.Manifest.Clean())
	require.Equal(t, 119, result.Manifest.CompletedCount)
	require.Len(t, result.Manifest.FailedQuestions, 1)
	require.Equal(t, core.QuestionID(target), result.Manifest.FailedQuestions[0].QuestionID)
	require.Equal(t, rollup.FailIntegrity, result.Manifest.FailedQuestions[0].Kind)
	require.False(t, result.Manifest.FailedQuestions[0].ScoredZero)

	// The hard failure cascades: dimension, area, cluster, and macro each
	// miss a child and fail their cardinality checks.
	require.Len(t, result.Manifest.FailedAggregates, 4)
	for _, f := range result.Manifest.FailedAggregates {
		require.Equal(t, rollup.FailCardinality, f.Kind)
	}
	require.Nil(t, result.Macro)

	// Sibling branches are untouched.
	require.Len(t, result.Clusters, 3)
}

func TestRunAll_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	_, _, err := testkit.WriteTree(dir, 4, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng, _ := newTestEngine(t, dir, nil, Options{Workers: 4})
	result, err := eng.RunAll(ctx)
	require.NoError(t, err)

	require.Zero(t, result.Manifest.CompletedCount)
	require.Len(t, result.Manifest.FailedQuestions, 120)
	require.Nil(t, result.Macro)
}
