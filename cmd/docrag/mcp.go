package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/config"
	"github.com/fyrsmithlabs/docrag/internal/mcp"
	"github.com/fyrsmithlabs/docrag/internal/services"
)

var mcpAllowedRoot string

func init() {
	mcpCmd.Flags().StringVar(&mcpAllowedRoot, "allowed-root", "", "restrict ingest_file to paths under this directory")
	rootCmd.AddCommand(mcpCmd)
}

// mcpCmd runs the MCP server over stdio in this process
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the docrag MCP server over stdio",
	Long: `Run the docrag MCP server on stdin/stdout. Services are built in-process
from the same configuration docragd uses; logs go to stderr.

Tools:
  ask_documents    answer a question from the indexed documents
  ingest_file      ingest a local file
  list_documents   list recently ingested documents

Examples:
  docrag mcp
  docrag mcp --allowed-root ~/Documents`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rt, err := services.Start(ctx, cfg, services.RuntimeOptions{Version: version, LogToStderr: true})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = rt.Close(closeCtx)
	}()

	reg := rt.Registry
	server, err := mcp.NewServer(&mcp.Config{
		Name:        "docrag",
		Version:     version,
		Logger:      rt.Logger.Underlying().Named("mcp"),
		AllowedRoot: mcpAllowedRoot,
		Meter:       rt.Telemetry.Meter("docrag.mcp"),
	}, reg.Answerer(), reg.Ingester(), reg.Metadata(), reg.Scrubber())
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	fmt.Fprintf(os.Stderr, "docrag MCP server started (stdio)\n")
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("stdio server error: %w", err)
	}
	rt.Logger.Info(ctx, "MCP server shutdown complete", zap.String("version", version))
	return nil
}
