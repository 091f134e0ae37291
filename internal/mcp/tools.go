package mcp

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docrag/internal/answer"
	"github.com/fyrsmithlabs/docrag/internal/ingest"
	"github.com/fyrsmithlabs/docrag/internal/sanitize"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

type askDocumentsInput struct {
	Question string `json:"question" jsonschema:"Question to answer from the ingested documents"`
}

type askDocumentsOutput struct {
	Answer        string          `json:"answer"`
	UsedContext   bool            `json:"used_context"`
	ContextLength int             `json:"context_length"`
	Sources       []answer.Source `json:"sources"`
}

type ingestFileInput struct {
	Path string `json:"path" jsonschema:"Local path of the file to ingest"`
}

type ingestFileOutput struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	Summary    string `json:"summary"`
	Chunks     int    `json:"chunks"`
	Indexed    int    `json:"indexed"`
	Dropped    int    `json:"dropped"`
}

type listDocumentsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum documents to return (default 20, max 200)"`
}

type documentEntry struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Summary   string    `json:"summary"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

type listDocumentsOutput struct {
	Documents []documentEntry `json:"documents"`
	Count     int             `json:"count"`
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.registerAskTool()
	s.registerIngestTool()
	if s.documents != nil {
		s.registerListTool()
	}
}

// instrument records metrics for one tool call and logs failures.
func (s *Server) instrument(ctx context.Context, tool string) func(error) {
	end := s.metrics.begin(ctx, tool)
	return func(err error) {
		end(err)
		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", tool), zap.Error(err))
		}
	}
}

func (s *Server) registerAskTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question using only the ingested documents",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args askDocumentsInput) (_ *mcp.CallToolResult, _ askDocumentsOutput, toolErr error) {
		done := s.instrument(ctx, "ask_documents")
		defer func() { done(toolErr) }()

		res, err := s.answerer.Answer(ctx, args.Question)
		if err != nil {
			return nil, askDocumentsOutput{}, err
		}

		out := askDocumentsOutput{
			Answer:        s.scrubber.Scrub(res.Answer).Scrubbed,
			UsedContext:   res.UsedContext,
			ContextLength: res.ContextLength,
			Sources:       res.Sources,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: out.Answer}},
		}, out, nil
	})
}

func (s *Server) registerIngestTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_file",
		Description: "Extract, index and summarize a local document (PDF, DOCX, HTML, Markdown or text)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ingestFileInput) (_ *mcp.CallToolResult, _ ingestFileOutput, toolErr error) {
		done := s.instrument(ctx, "ingest_file")
		defer func() { done(toolErr) }()

		up, err := s.readUpload(args.Path)
		if err != nil {
			return nil, ingestFileOutput{}, err
		}

		res, err := s.ingester.Ingest(ctx, up)
		if err != nil {
			return nil, ingestFileOutput{}, fmt.Errorf("ingest %s: %w", up.Filename, err)
		}

		out := ingestFileOutput{
			DocumentID: res.DocumentID,
			Filename:   res.Filename,
			Path:       res.StoragePath,
			Summary:    s.scrubber.Scrub(res.Summary).Scrubbed,
			Chunks:     res.Chunks,
			Indexed:    res.Indexed,
			Dropped:    res.Dropped,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{
				Text: fmt.Sprintf("Ingested %s: %d of %d chunks indexed", out.Filename, out.Indexed, out.Chunks),
			}},
		}, out, nil
	})
}

func (s *Server) registerListTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_documents",
		Description: "List recently ingested documents with their summaries",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listDocumentsInput) (_ *mcp.CallToolResult, _ listDocumentsOutput, toolErr error) {
		done := s.instrument(ctx, "list_documents")
		defer func() { done(toolErr) }()

		limit := args.Limit
		switch {
		case limit < 0:
			return nil, listDocumentsOutput{}, fmt.Errorf("invalid limit %d", limit)
		case limit == 0:
			limit = defaultListLimit
		case limit > maxListLimit:
			limit = maxListLimit
		}

		docs, err := s.documents.ListDocuments(ctx, limit)
		if err != nil {
			return nil, listDocumentsOutput{}, fmt.Errorf("metadata list failed: %w", err)
		}

		out := listDocumentsOutput{Documents: make([]documentEntry, len(docs)), Count: len(docs)}
		for i, d := range docs {
			out.Documents[i] = documentEntry{
				ID:        d.ID,
				Filename:  d.Filename,
				Summary:   s.scrubber.Scrub(d.Summary).Scrubbed,
				Path:      d.StoragePath,
				CreatedAt: d.CreatedAt,
			}
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%d documents", out.Count)}},
		}, out, nil
	})
}

// readUpload reads path into an ingest.Upload, enforcing AllowedRoot and MaxFileSize.
func (s *Server) readUpload(path string) (ingest.Upload, error) {
	if path == "" {
		return ingest.Upload{}, fmt.Errorf("%w: path is required", ingest.ErrInvalidRequest)
	}

	abs, err := sanitize.ValidatePath(path, s.config.AllowedRoot)
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("invalid path: %w", err)
	}

	f, err := os.Open(abs)
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("open %s: %w", filepath.Base(abs), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("stat %s: %w", filepath.Base(abs), err)
	}
	if info.IsDir() {
		return ingest.Upload{}, fmt.Errorf("%w: %s is a directory", ingest.ErrInvalidRequest, filepath.Base(abs))
	}
	if info.Size() > s.config.MaxFileSize {
		return ingest.Upload{}, fmt.Errorf("%w: file exceeds %d bytes", ingest.ErrInvalidRequest, s.config.MaxFileSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, s.config.MaxFileSize+1))
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("read %s: %w", filepath.Base(abs), err)
	}

	return ingest.Upload{
		Filename:    filepath.Base(abs),
		ContentType: mime.TypeByExtension(filepath.Ext(abs)),
		Data:        data,
	}, nil
}
