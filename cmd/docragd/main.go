// Docragd is the docrag daemon.
//
// It serves the HTTP API (ingest, chat, documents, health, metrics) and, when
// workflows are enabled, runs the Temporal worker that back-fills missing
// document summaries.
//
// Configuration is read from ~/.config/docrag/config.yaml (or -config) and
// DOCRAG_-prefixed environment variables. A .env file in the working
// directory is loaded first when present.
//
// Usage:
//
//	# Start the daemon with defaults
//	docragd
//
//	# Override settings from the environment
//	DOCRAG_SERVER_HTTP_PORT=8081 DOCRAG_VECTORSTORE_PROVIDER=qdrant docragd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/config"
	"github.com/fyrsmithlabs/docrag/internal/http"
	"github.com/fyrsmithlabs/docrag/internal/services"
	"github.com/fyrsmithlabs/docrag/internal/workflows"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  docragd [-config path]   Start the docrag daemon\n")
			fmt.Fprintf(os.Stderr, "  docragd version          Show version information\n")
			os.Exit(1)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func printVersion() {
	fmt.Printf("docragd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled or the HTTP
// server fails.
//
// It:
//  1. Loads and validates configuration
//  2. Initializes telemetry, logging and all services
//  3. Starts the summary back-fill worker if enabled
//  4. Serves HTTP until shutdown, then drains within server.shutdown_timeout
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return serve(ctx, cfg)
}

func serve(ctx context.Context, cfg *config.Config) error {
	rt, err := services.Start(ctx, cfg, services.RuntimeOptions{Version: version})
	if err != nil {
		return err
	}
	logger := rt.Logger
	reg := rt.Registry

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.Warn(closeCtx, "shutdown incomplete", zap.Error(err))
		}
	}()

	logger.Info(ctx, "Starting docragd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()),
		zap.Bool("workflows", cfg.Workflows.Enabled))

	stopWorker, err := startWorker(cfg, reg, logger.Underlying())
	if err != nil {
		return err
	}
	defer stopWorker()

	checks := make(map[string]http.HealthCheck, len(reg.Checks()))
	for name, check := range reg.Checks() {
		checks[name] = http.HealthCheck(check)
	}

	srv, err := http.NewServer(http.Deps{
		Ingester:  reg.Ingester(),
		Answerer:  reg.Answerer(),
		Documents: reg.Metadata(),
		Checks:    checks,
	}, logger.Underlying().Named("http"), &http.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		BodyLimit: cfg.Server.BodyLimit,
		Version:   version,
		Meter:     rt.Telemetry.Meter("docrag.http"),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info(ctx, "Received shutdown signal, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info(shutdownCtx, "Server shutdown complete")
	return nil
}

// startWorker runs the Temporal worker in the background when workflows
// are enabled. The returned func stops it and closes the client.
func startWorker(cfg *config.Config, reg services.Registry, logger *zap.Logger) (func(), error) {
	if !cfg.Workflows.Enabled {
		return func() {}, nil
	}

	c, err := workflows.Dial(cfg.Workflows)
	if err != nil {
		return nil, err
	}
	w := workflows.NewWorker(c, cfg.Workflows.TaskQueue, reg.Activities())
	if err := w.Start(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	logger.Info("summary back-fill worker started",
		zap.String("host_port", cfg.Workflows.HostPort),
		zap.String("task_queue", cfg.Workflows.TaskQueue))

	return func() {
		w.Stop()
		c.Close()
	}, nil
}
