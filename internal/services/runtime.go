package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/config"
	"github.com/fyrsmithlabs/docrag/internal/logging"
	"github.com/fyrsmithlabs/docrag/internal/telemetry"
)

// Runtime is a fully initialized process: logger, telemetry providers and
// the service registry built on them.
type Runtime struct {
	Config    *config.Config
	Logger    *logging.Logger
	Telemetry *telemetry.Telemetry
	Registry  Registry
}

// RuntimeOptions controls Start.
type RuntimeOptions struct {
	Version string

	// LogToStderr keeps stdout free for a stdio transport.
	LogToStderr bool
}

// Start initializes telemetry, logging and every service for cfg.
func Start(ctx context.Context, cfg *config.Config, opts RuntimeOptions) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, opts.Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	logCfg.Output.Stderr = opts.LogToStderr
	logCfg.Output.OTEL = tel.IsEnabled()
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("error", h.Error))
	}

	reg, err := Build(ctx, cfg, BuildOptions{
		Logger: logger,
		Tracer: tel.Tracer("docrag"),
		Meter:  tel.Meter("docrag"),
	})
	if err != nil {
		_ = tel.Shutdown(ctx)
		_ = logger.Sync()
		return nil, err
	}

	return &Runtime{Config: cfg, Logger: logger, Telemetry: tel, Registry: reg}, nil
}

// Close releases services, then flushes telemetry and the logger.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if err := r.Registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing services: %w", err))
	}
	if err := r.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
	}
	_ = r.Logger.Sync()
	return errors.Join(errs...)
}
