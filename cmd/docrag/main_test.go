package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docrag/internal/answer"
	api "github.com/fyrsmithlabs/docrag/internal/http"
	"github.com/fyrsmithlabs/docrag/internal/ingest"
)

// execute runs the root command against server and returns its output.
func execute(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--server", server}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		askJSON = false
		documentsLimit = 20
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Version: "1.2.3"})
		}))
		defer srv.Close()

		out, err := execute(t, srv.URL, "health")
		require.NoError(t, err)
		assert.Contains(t, out, "Status:  ok")
		assert.Contains(t, out, "Version: 1.2.3")
	})

	t.Run("degraded", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{
				Status: "degraded",
				Checks: map[string]string{"vectorstore": "connection refused"},
			})
		}))
		defer srv.Close()

		out, err := execute(t, srv.URL, "health")
		require.Error(t, err)
		assert.Contains(t, out, "degraded")
		assert.Contains(t, out, "connection refused")
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := execute(t, "http://127.0.0.1:1", "health")
		require.Error(t, err)
	})
}

func TestIngest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\nquarterly planning"), 0o600))

	t.Run("uploads multipart file", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/ingest", r.URL.Path)
			f, fh, err := r.FormFile("file")
			if !assert.NoError(t, err) {
				return
			}
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "notes.md", fh.Filename)
			assert.Equal(t, "# Notes\nquarterly planning", string(data))

			writeJSON(w, http.StatusOK, ingest.Result{
				DocumentID:  "doc-1",
				Filename:    "notes.md",
				StoragePath: "1700000000000-notes.md",
				Summary:     "Planning notes.",
				Chunks:      2,
				Indexed:     2,
			})
		}))
		defer srv.Close()

		out, err := execute(t, srv.URL, "ingest", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Ingested notes.md")
		assert.Contains(t, out, "doc-1")
		assert.Contains(t, out, "2 indexed, 0 dropped")
	})

	t.Run("rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "42")
			writeJSON(w, http.StatusTooManyRequests, api.ErrorResponse{
				Error:             "Please wait before uploading another file",
				RetryAfterSeconds: 42,
			})
		}))
		defer srv.Close()

		_, err := execute(t, srv.URL, "ingest", path)
		require.Error(t, err)
		assert.True(t, isRateLimited(err))
		assert.Contains(t, err.Error(), "retry after 42s")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "http://127.0.0.1:1", "ingest", filepath.Join(t.TempDir(), "absent.pdf"))
		require.Error(t, err)
	})
}

func TestAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat", r.URL.Path)
		var req api.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is the refund window", req.Message)
		writeJSON(w, http.StatusOK, api.ChatResponse{
			Answer:        "Thirty days.",
			UsedContext:   true,
			ContextLength: 120,
			Sources:       []answer.Source{{Path: "1-policy.pdf", ChunkIndex: 3, Score: 0.91}},
		})
	}))
	defer srv.Close()

	out, err := execute(t, srv.URL, "ask", "what", "is", "the", "refund", "window")
	require.NoError(t, err)
	assert.Contains(t, out, "Thirty days.")
	assert.Contains(t, out, "1-policy.pdf #3")

	out, err = execute(t, srv.URL, "chat", "--json", "what is the refund window")
	require.NoError(t, err)
	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.UsedContext)
}

func TestDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, api.DocumentsResponse{
			Documents: []api.DocumentInfo{{
				ID:        "doc-9",
				Filename:  "handbook.pdf",
				Summary:   "Employee handbook.",
				CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			}},
			Count: 1,
		})
	}))
	defer srv.Close()

	out, err := execute(t, srv.URL, "documents", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "2026-03-01 09:30  doc-9  handbook.pdf")
	assert.Contains(t, out, "Employee handbook.")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "http://127.0.0.1:1", "version")
	require.NoError(t, err)
	assert.Equal(t, "docrag dev\n", out)
}
