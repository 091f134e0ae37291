package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/answer"
	"github.com/fyrsmithlabs/docrag/internal/ingest"
	"github.com/fyrsmithlabs/docrag/internal/logging"
	"github.com/fyrsmithlabs/docrag/internal/metadata"
)

type stubIngester struct {
	res  *ingest.Result
	err  error
	got  ingest.Upload
	rid  string
	hits int
}

func (s *stubIngester) Ingest(ctx context.Context, up ingest.Upload) (*ingest.Result, error) {
	s.hits++
	s.got = up
	s.rid = logging.RequestIDFromContext(ctx)
	return s.res, s.err
}

type stubAnswerer struct {
	res *answer.Result
	err error
	got string
}

func (s *stubAnswerer) Answer(_ context.Context, q string) (*answer.Result, error) {
	s.got = q
	if strings.TrimSpace(q) == "" {
		return nil, answer.ErrInvalidRequest
	}
	return s.res, s.err
}

type stubLister struct {
	docs  []metadata.Document
	err   error
	limit int
}

func (s *stubLister) ListDocuments(_ context.Context, limit int) ([]metadata.Document, error) {
	s.limit = limit
	return s.docs, s.err
}

type fixture struct {
	server   *Server
	ingester *stubIngester
	answerer *stubAnswerer
	lister   *stubLister
}

func setupTestServer(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ingester: &stubIngester{},
		answerer: &stubAnswerer{},
		lister:   &stubLister{},
	}
	server, err := NewServer(Deps{
		Ingester:  f.ingester,
		Answerer:  f.answerer,
		Documents: f.lister,
	}, zap.NewNop(), &Config{Host: "localhost", Port: 8080, BodyLimit: "1K"})
	require.NoError(t, err)
	f.server = server
	return f
}

func multipartUpload(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(Deps{Ingester: &stubIngester{}, Answerer: &stubAnswerer{}}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8080, server.config.Port)
		assert.Equal(t, "20M", server.config.BodyLimit)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(Deps{Ingester: &stubIngester{}, Answerer: &stubAnswerer{}}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when services are missing", func(t *testing.T) {
		_, err := NewServer(Deps{Answerer: &stubAnswerer{}}, zap.NewNop(), nil)
		assert.Error(t, err)
		_, err = NewServer(Deps{Ingester: &stubIngester{}}, zap.NewNop(), nil)
		assert.Error(t, err)
	})
}

func TestHandleIngest(t *testing.T) {
	t.Run("returns result", func(t *testing.T) {
		f := setupTestServer(t)
		f.ingester.res = &ingest.Result{
			DocumentID:  "doc-1",
			Filename:    "notes.txt",
			StoragePath: "1700000000000-notes.txt",
			Summary:     "Notes.",
			Chunks:      2,
			Indexed:     2,
		}

		req := multipartUpload(t, "file", "notes.txt", []byte("hello world"))
		req.Header.Set(echo.HeaderXRequestID, "req-123")
		rec := serve(f.server, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "doc-1", resp["document_id"])
		assert.Equal(t, "1700000000000-notes.txt", resp["path"])
		assert.Equal(t, float64(2), resp["indexed"])

		assert.Equal(t, "notes.txt", f.ingester.got.Filename)
		assert.Equal(t, []byte("hello world"), f.ingester.got.Data)
		assert.Equal(t, "req-123", f.ingester.rid)
	})

	t.Run("missing file", func(t *testing.T) {
		f := setupTestServer(t)
		rec := serve(f.server, multipartUpload(t, "other", "a.txt", []byte("x")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, f.ingester.hits)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("rate limited", func(t *testing.T) {
		f := setupTestServer(t)
		f.ingester.err = &ingest.RateLimitError{RetryAfter: 42 * time.Second}

		rec := serve(f.server, multipartUpload(t, "file", "a.txt", []byte("x")))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "42", rec.Header().Get("Retry-After"))
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 42, resp.RetryAfterSeconds)
	})

	t.Run("body over limit", func(t *testing.T) {
		f := setupTestServer(t)
		rec := serve(f.server, multipartUpload(t, "file", "big.txt", bytes.Repeat([]byte("a"), 4096)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Zero(t, f.ingester.hits)
	})
}

func TestStatusForIngestError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ingest.ErrInvalidRequest, http.StatusBadRequest},
		{ingest.ErrExtractionInsufficient, http.StatusBadRequest},
		{&ingest.RateLimitError{RetryAfter: time.Second}, http.StatusTooManyRequests},
		{ingest.ErrNoValidVectors, http.StatusInternalServerError},
		{ingest.ErrStorageUpload, http.StatusInternalServerError},
		{ingest.ErrStoreWrite, http.StatusInternalServerError},
		{ingest.ErrMetadataWrite, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForIngestError(tt.err), tt.err.Error())
	}
}

func TestHandleChat(t *testing.T) {
	t.Run("returns answer", func(t *testing.T) {
		f := setupTestServer(t)
		f.answerer.res = &answer.Result{
			Answer:        "Paris.",
			UsedContext:   true,
			ContextLength: 31,
			Sources:       []answer.Source{{Path: "p", ChunkIndex: 0, Score: 0.9}},
		}

		body, err := json.Marshal(ChatRequest{Message: "capital of France?"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := serve(f.server, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Paris.", resp.Answer)
		assert.True(t, resp.UsedContext)
		assert.Equal(t, 31, resp.ContextLength)
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, "capital of France?", f.answerer.got)
	})

	t.Run("blank message", func(t *testing.T) {
		f := setupTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message":"   "}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := serve(f.server, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		f := setupTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("invalid json"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := serve(f.server, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unexpected error still answers", func(t *testing.T) {
		f := setupTestServer(t)
		f.answerer.err = errors.New("boom")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message":"hi"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := serve(f.server, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, answer.FallbackAnswer, resp.Answer)
	})
}

func TestHandleDocuments(t *testing.T) {
	t.Run("lists without raw text", func(t *testing.T) {
		f := setupTestServer(t)
		f.lister.docs = []metadata.Document{{
			ID:          "doc-1",
			Filename:    "a.txt",
			RawText:     "secret body",
			Summary:     "sum",
			StoragePath: "1-a.txt",
			CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}}

		rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/api/v1/documents?limit=5", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret body")
		assert.Equal(t, 5, f.lister.limit)

		var resp DocumentsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "1-a.txt", resp.Documents[0].Path)
	})

	t.Run("default limit", func(t *testing.T) {
		f := setupTestServer(t)
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, defaultDocumentsLimit, f.lister.limit)
	})

	t.Run("bad limit", func(t *testing.T) {
		f := setupTestServer(t)
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/api/v1/documents?limit=-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store error", func(t *testing.T) {
		f := setupTestServer(t)
		f.lister.err = errors.New("db down")
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("ok without checks", func(t *testing.T) {
		f := setupTestServer(t)
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
	})

	t.Run("degraded when a check fails", func(t *testing.T) {
		server, err := NewServer(Deps{
			Ingester: &stubIngester{},
			Answerer: &stubAnswerer{},
			Checks: map[string]HealthCheck{
				"metadata":    func(context.Context) error { return nil },
				"vectorstore": func(context.Context) error { return errors.New("unreachable") },
			},
		}, zap.NewNop(), nil)
		require.NoError(t, err)

		rec := serve(server, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "ok", resp.Checks["metadata"])
		assert.Contains(t, resp.Checks["vectorstore"], "unreachable")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupTestServer(t)
	rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServerShutdown(t *testing.T) {
	f := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, f.server.Shutdown(ctx))
}
