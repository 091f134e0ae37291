package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	api "github.com/fyrsmithlabs/docrag/internal/http"
	"github.com/fyrsmithlabs/docrag/internal/ingest"
)

var (
	documentsLimit int
	askJSON        bool
)

func init() {
	documentsCmd.Flags().IntVarP(&documentsLimit, "limit", "n", 20, "maximum number of documents to list")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw JSON response")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(documentsCmd)
}

// ingestCmd uploads a document
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Upload a document for indexing",
	Long: `Upload a document to docragd. The server extracts its text, chunks and
embeds it, and records a summary.

Supported formats: PDF, DOCX, DOC, ODT, RTF, HTML, TXT, MD, CSV.

Examples:
  docrag ingest handbook.pdf
  docrag ingest --server http://rag.internal:9090 notes.md`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

// askCmd asks a question against the indexed documents
var askCmd = &cobra.Command{
	Use:     "ask <question>",
	Aliases: []string{"chat"},
	Short:   "Ask a question about the ingested documents",
	Long: `Ask a question. The answer is grounded in the retrieved document chunks;
when nothing relevant is indexed the server says so instead of guessing.

Examples:
  docrag ask "What is the refund policy?"
  docrag chat --json "Who approves expenses?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// documentsCmd lists ingested documents
var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List recently ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}

	body, contentType, err := multipartBody(filepath.Base(path), data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, serverURL+"/api/v1/ingest", body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var res ingest.Result
	if _, err := do(req, &res); err != nil {
		if isRateLimited(err) {
			return fmt.Errorf("upload rejected, another document was ingested recently: %w", err)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ingested %s\n", res.Filename)
	fmt.Fprintf(out, "  ID:      %s\n", res.DocumentID)
	fmt.Fprintf(out, "  Path:    %s\n", res.StoragePath)
	fmt.Fprintf(out, "  Chunks:  %d indexed, %d dropped\n", res.Indexed, res.Dropped)
	fmt.Fprintf(out, "  Summary: %s\n", res.Summary)
	return nil
}

func multipartBody(filename string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question cannot be empty")
	}

	reqJSON, err := json.Marshal(api.ChatRequest{Message: question})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, serverURL+"/api/v1/chat", bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp api.ChatResponse
	if _, err := do(req, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintln(out, resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, src := range resp.Sources {
			fmt.Fprintf(out, "  %s #%d (%.3f)\n", src.Path, src.ChunkIndex, src.Score)
		}
	}
	return nil
}

func runDocuments(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(documentsLimit))
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, serverURL+"/api/v1/documents?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	var resp api.DocumentsResponse
	if _, err := do(req, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if resp.Count == 0 {
		fmt.Fprintln(out, "No documents ingested yet")
		return nil
	}
	for _, d := range resp.Documents {
		fmt.Fprintf(out, "%s  %s  %s\n", d.CreatedAt.Format("2006-01-02 15:04"), d.ID, d.Filename)
		if d.Summary != "" {
			fmt.Fprintf(out, "    %s\n", d.Summary)
		}
	}
	return nil
}
