package ports

import (
	"context"

	"sisas/domain/evidence"
	"sisas/domain/rollup"
)

// ResultSink receives the engine's hash-stamped output records. Sinks are
// invoked after each record is finalized; a sink failure is logged and
// reported but never alters scores.
type ResultSink interface {
	WriteQuestion(ctx context.Context, record *evidence.QuestionRecord) error
	WriteAggregate(ctx context.Context, score *rollup.GroupScore) error
	WriteManifest(ctx context.Context, manifest *rollup.RunManifest) error
}
