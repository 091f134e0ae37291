package services

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/docrag/internal/answer"
	"github.com/fyrsmithlabs/docrag/internal/embeddings"
	"github.com/fyrsmithlabs/docrag/internal/ingest"
	"github.com/fyrsmithlabs/docrag/internal/metadata"
	"github.com/fyrsmithlabs/docrag/internal/secrets"
	"github.com/fyrsmithlabs/docrag/internal/telemetry"
	"github.com/fyrsmithlabs/docrag/internal/vectorstore"
	"github.com/fyrsmithlabs/docrag/internal/workflows"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Registry provides access to all docrag services.
type Registry interface {
	Ingester() ingest.Ingester
	Answerer() answer.Answerer
	Metadata() metadata.Store
	VectorStore() vectorstore.Store
	Embedder() embeddings.Embedder
	Scrubber() secrets.Scrubber
	Hooks() *telemetry.Hooks
	Activities() *workflows.Activities
	Checks() map[string]HealthCheck
	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	Ingester    ingest.Ingester
	Answerer    answer.Answerer
	Metadata    metadata.Store
	VectorStore vectorstore.Store
	Embedder    embeddings.Embedder
	Scrubber    secrets.Scrubber
	Hooks       *telemetry.Hooks
	Activities  *workflows.Activities
	Checks      map[string]HealthCheck

	// Closers run in reverse order on Close.
	Closers []func() error
}

// registry is the concrete implementation of Registry.
type registry struct {
	ingester    ingest.Ingester
	answerer    answer.Answerer
	metadata    metadata.Store
	vectorStore vectorstore.Store
	embedder    embeddings.Embedder
	scrubber    secrets.Scrubber
	hooks       *telemetry.Hooks
	activities  *workflows.Activities
	checks      map[string]HealthCheck
	closers     []func() error
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	checks := make(map[string]HealthCheck, len(opts.Checks))
	for name, check := range opts.Checks {
		checks[name] = check
	}
	return &registry{
		ingester:    opts.Ingester,
		answerer:    opts.Answerer,
		metadata:    opts.Metadata,
		vectorStore: opts.VectorStore,
		embedder:    opts.Embedder,
		scrubber:    opts.Scrubber,
		hooks:       opts.Hooks,
		activities:  opts.Activities,
		checks:      checks,
		closers:     opts.Closers,
	}
}

func (r *registry) Ingester() ingest.Ingester         { return r.ingester }
func (r *registry) Answerer() answer.Answerer         { return r.answerer }
func (r *registry) Metadata() metadata.Store          { return r.metadata }
func (r *registry) VectorStore() vectorstore.Store    { return r.vectorStore }
func (r *registry) Embedder() embeddings.Embedder     { return r.embedder }
func (r *registry) Scrubber() secrets.Scrubber        { return r.scrubber }
func (r *registry) Hooks() *telemetry.Hooks           { return r.hooks }
func (r *registry) Activities() *workflows.Activities { return r.activities }
func (r *registry) Checks() map[string]HealthCheck    { return r.checks }

// Close releases resources in reverse order of acquisition. It is safe to
// call more than once.
func (r *registry) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
