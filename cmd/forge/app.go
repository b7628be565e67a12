package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kcowger/commcare-forge-sub001/internal/config"
	"github.com/kcowger/commcare-forge-sub001/internal/export"
	"github.com/kcowger/commcare-forge-sub001/internal/generate"
	"github.com/kcowger/commcare-forge-sub001/internal/hqrules"
	"github.com/kcowger/commcare-forge-sub001/internal/logging"
	"github.com/kcowger/commcare-forge-sub001/internal/pipeline"
	"github.com/kcowger/commcare-forge-sub001/internal/secrets"
	"github.com/kcowger/commcare-forge-sub001/internal/telemetry"
	"github.com/kcowger/commcare-forge-sub001/internal/toolchain"
	"github.com/kcowger/commcare-forge-sub001/internal/validation"
)

const instrumentationName = "github.com/kcowger/commcare-forge-sub001/cmd/forge"

// app holds the services a command needs. Build it with newApp and release it
// with close.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	scrubber  secrets.Scrubber
	probe     *toolchain.CachedProbe
	watcher   *toolchain.Watcher
	orch      *pipeline.Orchestrator

	// genErr explains why no generator is configured.
	genErr error
}

// newApp loads configuration and wires the pipeline. progress, if non-nil,
// receives every progress event.
//
// Initialization order:
//  1. configuration and flag overrides
//  2. secret scrubber
//  3. telemetry, then the logger bridged onto it
//  4. toolchain probe and its invalidation watcher
//  5. generator, exporter and orchestrator
func newApp(ctx context.Context, opts *rootOptions, progress pipeline.ProgressSink) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyFlags(cfg, opts); err != nil {
		return nil, err
	}

	scrubber, err := secrets.New(&cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secret scrubber: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider(), logging.WithScrubber(scrubber))
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		scrubber:  scrubber,
		probe:     toolchain.NewCachedProbe(toolchain.NewLocalProbe(cfg.Toolchain.JavaPath, cfg.Toolchain.JarPath)),
	}

	if cfg.Toolchain.Watch && cfg.Toolchain.JarPath != "" {
		w, err := toolchain.WatchInvalidation(ctx, a.probe, cfg.Toolchain.JarPath, logger.Underlying())
		if err != nil {
			// Availability is still probed once; only live invalidation is lost.
			logger.Warn(ctx, "toolchain watcher disabled", zap.Error(err))
		} else {
			a.watcher = w
		}
	}

	gen, err := generate.New(cfg.Generator, logger.Underlying())
	if err != nil {
		a.genErr = err
		logger.Debug(ctx, "generator unavailable", zap.Error(err))
	}

	validators := []validation.Validator{
		toolchain.NewValidator(a.probe,
			toolchain.WithTimeout(cfg.Toolchain.Timeout.Duration()),
			toolchain.WithLogger(logger.Underlying().Named("toolchain"))),
		hqrules.New(),
	}

	a.orch = pipeline.New(gen, validators,
		export.New(cfg.Export.Dir, logger.Underlying().Named("export")),
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithTracer(tel.Tracer(instrumentationName)),
		pipeline.WithMeter(tel.Meter(instrumentationName)),
		pipeline.WithScrubber(scrubber),
		pipeline.WithMaxAttempts(cfg.Pipeline.MaxAttempts),
		pipeline.WithWorkDir(cfg.Pipeline.WorkDir),
		pipeline.WithExportJSON(cfg.Pipeline.ExportJSON),
		pipeline.WithProgress(progress),
	)
	return a, nil
}

// applyFlags lets command-line flags override loaded configuration.
func applyFlags(cfg *config.Config, opts *rootOptions) error {
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.exportDir != "" {
		cfg.Export.Dir = opts.exportDir
	}
	if opts.jarPath != "" {
		cfg.Toolchain.JarPath = opts.jarPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// requireGenerator reports why generation is unavailable.
func (a *app) requireGenerator() error {
	if a.genErr == nil {
		return nil
	}
	return fmt.Errorf("generator unavailable: %w", a.genErr)
}

// close stops background work and flushes telemetry.
func (a *app) close(ctx context.Context) {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if err := a.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
