package ports

import (
	"context"

	"sisas/domain/contract"
	"sisas/domain/core"
	"sisas/domain/signal"
)

// RawOutput is one extraction method's result: an opaque payload plus the
// method's own confidence in it.
type RawOutput struct {
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
}

// MethodContext carries the per-question execution context handed to a
// method alongside the resolved context pack.
type MethodContext struct {
	QuestionID      core.QuestionID
	ExecutorBinding string
	Role            string
	Metadata        map[string]interface{}
}

// MethodExecutor invokes one named extraction method. Implementations
// live outside this module (pattern matchers, embedding models, causal
// inference); the engine treats every returned error as a recoverable
// per-method failure, never pipeline-fatal.
type MethodExecutor interface {
	Execute(ctx context.Context, ref contract.MethodRef, mctx MethodContext, pack *signal.Pack) (RawOutput, error)
}

// MethodCatalog answers whether a method reference resolves to a real
// method. The contract store consults it at load time so dangling refs
// fail fast instead of at execution.
type MethodCatalog interface {
	Has(ref contract.MethodRef) bool
}
