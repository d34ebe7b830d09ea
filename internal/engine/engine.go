// Package engine orchestrates the per-question pipelines and the four
// rollup stages, exposing the library API: RunQuestion, RunAll, and
// MacroResult.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sisas/domain/contract"
	"sisas/domain/core"
	"sisas/domain/evidence"
	"sisas/domain/signal"
	"sisas/internal"
	"sisas/internal/assembler"
	"sisas/internal/contractstore"
	apperrors "sisas/internal/errors"
	"sisas/internal/evidval"
	"sisas/internal/scorer"
	"sisas/internal/signals"
	"sisas/ports"
)

// Options tunes engine execution.
type Options struct {
	// Workers bounds concurrent question pipelines.
	Workers int
	// MethodTimeout caps each extraction method call; a timed-out method
	// becomes a missing source, never a stuck pipeline.
	MethodTimeout time.Duration
	// StrictWeights turns missing aggregation-weight packs into hard
	// aggregate failures instead of recorded equal-weight fallbacks.
	StrictWeights bool
	Sinks         []ports.ResultSink
	Logger        *internal.Logger
}

// Engine is the contract-driven evidence and aggregation engine. All
// fields are set at construction; the engine itself holds no mutable
// state apart from the last completed run result.
type Engine struct {
	contracts *contractstore.Store
	signals   *signals.Registry
	executor  ports.MethodExecutor
	sinks     []ports.ResultSink
	log       *internal.Logger

	workers       int
	methodTimeout time.Duration
	strictWeights bool

	mu      sync.Mutex
	lastRun *RunResult
}

// New wires an engine from its collaborators. The signal registry may be
// nil, in which case every provenance is marked none.
func New(store *contractstore.Store, registry *signals.Registry, executor ports.MethodExecutor, opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 8
	}
	if opts.MethodTimeout <= 0 {
		opts.MethodTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Engine{
		contracts:     store,
		signals:       registry,
		executor:      executor,
		sinks:         opts.Sinks,
		log:           logger,
		workers:       opts.Workers,
		methodTimeout: opts.MethodTimeout,
		strictWeights: opts.StrictWeights,
	}
}

// RunQuestion executes one full question pipeline: methods, assembly,
// validation, scoring. Contract-level failures (load, integrity) abort
// only this question.
func (e *Engine) RunQuestion(ctx context.Context, id core.QuestionID) (*evidence.QuestionRecord, error) {
	c, err := e.contracts.Load(id)
	if err != nil {
		return nil, err
	}

	contextPack, prov := e.resolveContextPack(c)
	outputs := e.executeBindings(ctx, c, contextPack)

	ev, err := assembler.Assemble(id, outputs, c, prov)
	if err != nil {
		return nil, fmt.Errorf("assembling %s: %w", id, err)
	}

	validation := evidval.New(c).Validate(ev)
	if validation.AbortTriggered {
		e.log.Warn("[Engine] %s abort triggered (%v), scoring zero", id, validation.AbortConditions)
	}

	scored, err := scorer.Score(ev, validation, c, e.scoringPack(id))
	if err != nil {
		return nil, fmt.Errorf("scoring %s: %w", id, err)
	}

	record := &evidence.QuestionRecord{
		QuestionID: id,
		Score:      scored,
		Evidence:   ev,
		Validation: validation,
		Provenance: ev.Provenance,
		CreatedAt:  core.Now(),
	}
	if err := record.Stamp(); err != nil {
		return nil, fmt.Errorf("stamping %s: %w", id, err)
	}

	for _, sink := range e.sinks {
		if err := sink.WriteQuestion(ctx, record); err != nil {
			e.log.Error("[Engine] %s: %v", id, apperrors.SinkFailure("question", err))
		}
	}
	return record, nil
}

// resolveContextPack looks up the context pack by question id first,
// then by policy-area id. A miss is the documented fallback and is
// stamped into the provenance as such; a nil registry yields the
// provenance-none marker.
func (e *Engine) resolveContextPack(c *contract.Contract) (*signal.Pack, signal.Provenance) {
	if e.signals == nil {
		return nil, signal.None()
	}
	if pack := e.signals.ContextPack(c.Identity.QuestionID.String()); pack != nil {
		return pack, pack.Provenance()
	}
	if pack := e.signals.ContextPack(c.Identity.AreaID.String()); pack != nil {
		return pack, pack.Provenance()
	}
	return nil, signal.Fallback(c.Identity.AreaID.String())
}

func (e *Engine) scoringPack(id core.QuestionID) *signal.Pack {
	if e.signals == nil {
		return nil
	}
	return e.signals.ScoringPack(id)
}

// executeBindings invokes every bound method in priority order with a
// per-method timeout. A failed or timed-out method is absorbed as a
// missing source; the pipeline always proceeds to assembly.
func (e *Engine) executeBindings(
	ctx context.Context,
	c *contract.Contract,
	pack *signal.Pack,
) map[string]assembler.SourceOutput {
	outputs := make(map[string]assembler.SourceOutput, len(c.Bindings))
	for _, binding := range c.Bindings {
		if ctx.Err() != nil {
			outputs[binding.Provides] = assembler.SourceOutput{
				Binding: binding,
				Err:     fmt.Errorf("%w: %v", core.ErrMethodExecution, ctx.Err()),
			}
			continue
		}

		methodCtx, cancel := context.WithTimeout(ctx, e.methodTimeout)
		out, err := e.executor.Execute(methodCtx, binding.Ref, ports.MethodContext{
			QuestionID:      c.Identity.QuestionID,
			ExecutorBinding: c.ExecutorBinding,
			Role:            binding.Role,
		}, pack)
		cancel()

		if err != nil {
			e.log.Warn("[Engine] %s: %v", c.Identity.QuestionID,
				apperrors.MethodExec(binding.Ref.Key(), err))
			if methodCtx.Err() == context.DeadlineExceeded {
				err = fmt.Errorf("%w: %s", core.ErrMethodTimeout, binding.Ref.Key())
			} else {
				err = fmt.Errorf("%w: %s: %v", core.ErrMethodExecution, binding.Ref.Key(), err)
			}
			outputs[binding.Provides] = assembler.SourceOutput{Binding: binding, Err: err}
			continue
		}
		outputs[binding.Provides] = assembler.SourceOutput{Binding: binding, Output: out}
	}
	return outputs
}
