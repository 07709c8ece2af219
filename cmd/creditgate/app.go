package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/cli"
	"mercator-hq/creditgate/pkg/config"
	"mercator-hq/creditgate/pkg/costs"
	"mercator-hq/creditgate/pkg/gate"
	"mercator-hq/creditgate/pkg/ledger"
	"mercator-hq/creditgate/pkg/storage"
	"mercator-hq/creditgate/pkg/telemetry/logging"
	"mercator-hq/creditgate/pkg/telemetry/metrics"
	"mercator-hq/creditgate/pkg/telemetry/tracing"
)

// app is the wired set of components shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend storage.Backend
	limits  *ledger.DynamicLimits
	ledger  *ledger.Ledger
	cache   *cache.Cache
	gate    *gate.Gate
	metrics *metrics.Collector
	tracer  *tracing.Tracer
}

// loadConfig loads the configuration for a command and publishes it as the
// process-wide configuration.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	config.SetConfig(cfg)
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	lc := logging.FromConfig(cfg.Telemetry.Logging)
	lc.Writer = w
	logger, err := logging.New(lc)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

// newApp opens storage and builds the gate. withTelemetry enables metrics
// collection and trace export, which only the serve command needs.
func newApp(ctx context.Context, cfg *config.Config, logs io.Writer, withTelemetry bool) (*app, error) {
	logger, err := newLogger(cfg, logs)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	clock, err := cfg.Credits.PeriodClock()
	if err != nil {
		return nil, cli.NewConfigError("credits", err.Error())
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		limits: ledger.NewDynamicLimits(cfg.Credits.PlanLimits()),
	}

	if withTelemetry {
		a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		a.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing, Version)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	a.backend, err = storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.ledger = ledger.New(a.backend, ledger.Config{
		Clock:        clock,
		Limits:       a.limits,
		MaxAttempts:  cfg.Credits.MaxDeductRetries,
		RetryBackoff: cfg.Credits.RetryBackoff,
		Logger:       logger,
	})
	a.cache = cache.New(a.backend, cache.Config{
		LookupTimeout: cfg.Cache.LookupTimeout,
		Logger:        logger,
	})

	gc := gate.Config{
		Costs:              costs.DefaultTable(),
		Ledger:             a.ledger,
		OperationTimeout:   cfg.Storage.OperationTimeout,
		TransactionHistory: cfg.Credits.TransactionHistory,
		Metrics:            a.metrics,
		Tracer:             a.tracer,
		Logger:             logger,
	}
	if cfg.Cache.Enabled {
		gc.Cache = a.cache
	}
	if a.gate, err = gate.New(gc); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// Close flushes traces and closes storage.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// parseFeature resolves a feature name against the cost table.
func parseFeature(s string) (costs.Feature, error) {
	if s == "" {
		return "", cli.NewConfigError("feature", "a feature is required")
	}
	return costs.DefaultTable().ParseFeature(s)
}
