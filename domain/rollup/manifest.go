package rollup

import (
	"sisas/domain/core"
)

// FailureKind classifies run failures for the manifest.
type FailureKind string

const (
	FailContractLoad FailureKind = "CONTRACT_LOAD"
	FailIntegrity    FailureKind = "INTEGRITY"
	FailCardinality  FailureKind = "STRUCTURAL_CARDINALITY"
	FailSignalPack   FailureKind = "SIGNAL_MISSING"
	FailAbort        FailureKind = "ABORT_TRIGGERED"
	FailInternal     FailureKind = "INTERNAL"
)

// QuestionFailure records one question pipeline that did not produce a
// usable score. ScoredZero distinguishes abort-triggered zero scores
// (which still participate in rollups) from hard failures excluded from
// the weighted mean; the two policies must never be conflated.
type QuestionFailure struct {
	QuestionID core.QuestionID `json:"question_id"`
	Kind       FailureKind     `json:"kind"`
	Message    string          `json:"message"`
	ScoredZero bool            `json:"scored_zero"`
}

// AggregateFailure records one aggregate that could not be computed.
// Failed aggregates are excluded from their parent's weighted mean.
type AggregateFailure struct {
	Level   Level       `json:"level"`
	GroupID string      `json:"group_id"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// RunManifest is the truth source for one run: what completed, what
// failed and how each failure was treated. The final macro output always
// carries it.
type RunManifest struct {
	RunID            core.RunID         `json:"run_id"`
	StartedAt        core.Timestamp     `json:"started_at"`
	FinishedAt       core.Timestamp     `json:"finished_at"`
	TotalQuestions   int                `json:"total_questions"`
	CompletedCount   int                `json:"completed_count"`
	ZeroScored       []core.QuestionID  `json:"zero_scored"`
	FailedQuestions  []QuestionFailure  `json:"failed_questions"`
	FailedAggregates []AggregateFailure `json:"failed_aggregates"`
	TopologyHash     core.Hash          `json:"topology_hash"`
	RecordHash       core.RecordHash    `json:"record_hash"`
}

// Clean reports whether every question and aggregate completed.
func (m *RunManifest) Clean() bool {
	return len(m.FailedQuestions) == 0 && len(m.FailedAggregates) == 0
}

// Stamp computes and stores the manifest record hash.
func (m *RunManifest) Stamp() error {
	m.RecordHash = ""
	h, err := core.CanonicalHash(struct {
		RunID            core.RunID         `json:"run_id"`
		TotalQuestions   int                `json:"total_questions"`
		CompletedCount   int                `json:"completed_count"`
		ZeroScored       []core.QuestionID  `json:"zero_scored"`
		FailedQuestions  []QuestionFailure  `json:"failed_questions"`
		FailedAggregates []AggregateFailure `json:"failed_aggregates"`
		TopologyHash     core.Hash          `json:"topology_hash"`
	}{m.RunID, m.TotalQuestions, m.CompletedCount, m.ZeroScored,
		m.FailedQuestions, m.FailedAggregates, m.TopologyHash})
	if err != nil {
		return err
	}
	m.RecordHash = core.RecordHash(h)
	return nil
}
