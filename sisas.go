// Package sisas wires a contract-driven evidence and aggregation engine
// from environment configuration. Callers supply the method executor;
// everything else comes from config: the contract store, the signal
// registry, and the configured result sinks.
package sisas

import (
	"context"
	"os"

	"sisas/adapters/excel"
	"sisas/adapters/jsonfile"
	"sisas/adapters/postgres"
	"sisas/domain/signal"
	"sisas/internal"
	"sisas/internal/config"
	"sisas/internal/contractstore"
	"sisas/internal/engine"
	apperrors "sisas/internal/errors"
	"sisas/internal/signals"
	"sisas/ports"
)

// Executor bundles the two method-side capabilities the engine needs:
// executing a bound method and answering whether it exists.
type Executor interface {
	ports.MethodExecutor
	ports.MethodCatalog
}

// NewEngine builds a ready-to-run engine from environment configuration.
// The returned close function releases sink resources and must be called
// when the engine is no longer needed.
func NewEngine(ctx context.Context, executor Executor) (*engine.Engine, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return NewEngineWithConfig(ctx, cfg, executor)
}

// NewEngineWithConfig wires an engine from an explicit configuration.
func NewEngineWithConfig(ctx context.Context, cfg *config.Config, executor Executor) (*engine.Engine, func() error, error) {
	logger := internal.DefaultLogger

	store := contractstore.New(cfg.Contracts.Dir, executor, logger)

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	sinks, closeSinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	eng := engine.New(store, registry, executor, engine.Options{
		Workers:       cfg.Run.Workers,
		MethodTimeout: cfg.Run.MethodTimeout,
		StrictWeights: cfg.Run.StrictWeights,
		Sinks:         sinks,
		Logger:        logger,
	})
	return eng, closeSinks, nil
}

// buildRegistry merges the signal pack directory with the optional
// aggregation-settings workbook. A missing pack directory is not an
// error; the engine then runs on contract-embedded defaults with
// fallback provenance.
func buildRegistry(cfg *config.Config, logger *internal.Logger) (*signals.Registry, error) {
	var packs []*signal.Pack

	if _, err := os.Stat(cfg.Signals.Dir); err == nil {
		dirPacks, err := signals.LoadPacks(cfg.Signals.Dir)
		if err != nil {
			return nil, apperrors.Wrapf(err, "loading signal packs from %s", cfg.Signals.Dir)
		}
		packs = append(packs, dirPacks...)
	} else {
		logger.Warn("[sisas] signal dir %s not found, running on contract defaults", cfg.Signals.Dir)
	}

	if cfg.Signals.MembershipFile != "" {
		reader := excel.NewSettingsReader(cfg.Signals.MembershipFile)
		workbookPacks, err := reader.ReadPacks("workbook")
		if err != nil {
			return nil, apperrors.Wrapf(err, "loading settings workbook %s", cfg.Signals.MembershipFile)
		}
		packs = append(packs, workbookPacks...)
	}

	if len(packs) == 0 {
		return nil, nil
	}
	logger.Info("[sisas] signal registry built from %d packs", len(packs))
	return signals.NewRegistry(packs)
}

func buildSinks(ctx context.Context, cfg *config.Config) ([]ports.ResultSink, func() error, error) {
	var sinks []ports.ResultSink
	closeSinks := func() error { return nil }

	if cfg.Output.Dir != "" {
		sink, err := jsonfile.NewSink(cfg.Output.Dir)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, sink)
	}

	if cfg.Output.DatabaseURL != "" {
		repo, err := postgres.Connect(ctx, cfg.Output.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, repo)
		closeSinks = repo.Close
	}

	return sinks, closeSinks, nil
}
