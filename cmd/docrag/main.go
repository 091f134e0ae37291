// Package main implements the docrag CLI for operating a docragd server.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	api "github.com/fyrsmithlabs/docrag/internal/http"
)

var (
	// serverURL is the base URL for the docragd HTTP server
	serverURL string
	// configPath overrides the config file for in-process commands
	configPath string
	// timeout bounds each HTTP request
	timeout time.Duration
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docrag",
	Short: "CLI for docrag document ingestion and question answering",
	Long: `docrag is a command-line interface for the docragd HTTP server.
It uploads documents, asks questions, lists ingested documents and checks
server health. It can also run the MCP stdio server in-process.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	// Load .env before flag defaults read the environment.
	_ = godotenv.Load()
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("DOCRAG_SERVER_URL", "http://localhost:9090"), "docragd server URL")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (mcp and backfill)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "HTTP request timeout")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check docragd server health",
	Long: `Check the health status of the docragd HTTP server.

Examples:
  # Check health
  docrag health

  # Check health on a different server
  docrag health --server http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "docrag %s\n", version)
	},
}

func runHealth(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	var health api.HealthResponse
	status, err := do(req, &health)
	if err != nil && status != http.StatusServiceUnavailable {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Status:  %s\n", health.Status)
	if health.Version != "" {
		fmt.Fprintf(out, "Version: %s\n", health.Version)
	}
	for name, state := range health.Checks {
		fmt.Fprintf(out, "  %-12s %s\n", name, state)
	}
	if status != http.StatusOK {
		return fmt.Errorf("server unhealthy (status %d)", status)
	}
	return nil
}

// apiError is a non-2xx response from the server.
type apiError struct {
	Status int
	Body   api.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Body.RetryAfterSeconds > 0 {
		return fmt.Sprintf("%s (status %d, retry after %ds)", e.Body.Error, e.Status, e.Body.RetryAfterSeconds)
	}
	return fmt.Sprintf("%s (status %d)", e.Body.Error, e.Status)
}

// do sends req and decodes a JSON response into out. Non-2xx responses are
// returned as *apiError; out is still decoded when the body allows it.
func do(req *http.Request, out any) (int, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, &apiErr.Body); jsonErr != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = http.StatusText(resp.StatusCode)
		}
		if out != nil {
			_ = json.Unmarshal(body, out)
		}
		return resp.StatusCode, apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// isRateLimited reports whether err is a 429 from the server.
func isRateLimited(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
