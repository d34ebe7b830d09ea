package evidence

import (
	"sisas/domain/core"
	"sisas/domain/signal"
)

// ScoredResult converts validated Evidence into the question-level score.
// RawScore is the modality formula output on [0,1]; AdjustedScore is the
// same result projected onto the [0,3] reporting scale (minus any
// na-policy penalty), which is what the rollup stages consume.
type ScoredResult struct {
	QuestionID       core.QuestionID `json:"question_id"`
	Modality         string          `json:"modality"`
	RawScore         float64         `json:"raw_score"`
	AdjustedScore    float64         `json:"adjusted_score"`
	Threshold        float64         `json:"threshold"`
	Passed           bool            `json:"passed"`
	FailureCode      string          `json:"failure_code,omitempty"`
	Aborted          bool            `json:"aborted,omitempty"`
	SignalSourceHash core.PackHash   `json:"signal_source_hash,omitempty"`
}

// QuestionRecord is the engine's one-JSON-record-per-question output:
// scored result, evidence, validation outcome, and provenance, stamped
// with a record hash for downstream audit.
type QuestionRecord struct {
	QuestionID core.QuestionID   `json:"question_id"`
	Score      ScoredResult      `json:"score"`
	Evidence   *Evidence         `json:"evidence"`
	Validation *ValidationResult `json:"validation"`
	Provenance signal.Provenance `json:"signal_provenance"`
	RecordHash core.RecordHash   `json:"record_hash"`
	CreatedAt  core.Timestamp    `json:"created_at"`
}

// Stamp computes and stores the record hash over everything but the
// stamp itself and the creation timestamp.
func (r *QuestionRecord) Stamp() error {
	r.RecordHash = ""
	h, err := core.CanonicalHash(struct {
		QuestionID core.QuestionID   `json:"question_id"`
		Score      ScoredResult      `json:"score"`
		Evidence   *Evidence         `json:"evidence"`
		Validation *ValidationResult `json:"validation"`
		Provenance signal.Provenance `json:"signal_provenance"`
	}{r.QuestionID, r.Score, r.Evidence, r.Validation, r.Provenance})
	if err != nil {
		return err
	}
	r.RecordHash = core.RecordHash(h)
	return nil
}
