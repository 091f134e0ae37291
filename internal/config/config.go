// Package config provides configuration loading for docrag.
//
// Configuration is assembled from three layers: hardcoded defaults, an
// optional YAML file, and DOCRAG_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete docrag configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Ingest        IngestConfig        `koanf:"ingest"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Generation    GenerationConfig    `koanf:"generation"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Database      DatabaseConfig      `koanf:"database"`
	Storage       StorageConfig       `koanf:"storage"`
	Prompts       PromptsConfig       `koanf:"prompts"`
	Redaction     RedactionConfig     `koanf:"redaction"`
	Events        EventsConfig        `koanf:"events"`
	Workflows     WorkflowsConfig     `koanf:"workflows"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	BodyLimit       string   `koanf:"body_limit"`
}

// IngestConfig controls the ingestion pipeline.
type IngestConfig struct {
	ChunkSize        int      `koanf:"chunk_size"`
	ChunkOverlap     int      `koanf:"chunk_overlap"`
	Cooldown         Duration `koanf:"cooldown"`
	MinTextLength    int      `koanf:"min_text_length"`
	EmbedConcurrency int      `koanf:"embed_concurrency"`
	SummaryMaxChars  int      `koanf:"summary_max_chars"`
	Timeout          Duration `koanf:"timeout"`
}

// RetrievalConfig controls question answering.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider          string   `koanf:"provider"` // openai, ollama, fastembed
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	Dimension         int      `koanf:"dimension"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Timeout           Duration `koanf:"timeout"`
	CacheDir          string   `koanf:"cache_dir"` // fastembed model cache
}

// GenerationConfig selects and configures the generation provider.
type GenerationConfig struct {
	Provider string   `koanf:"provider"` // openai, ollama
	BaseURL  string   `koanf:"base_url"`
	Model    string   `koanf:"model"`
	APIKey   Secret   `koanf:"api_key"`
	Timeout  Duration `koanf:"timeout"`
}

// VectorStoreConfig selects and configures the vector index.
//
// Provider-specific settings are flattened with a provider prefix so the
// SECTION_FIELD environment mapping reaches them.
type VectorStoreConfig struct {
	Provider        string `koanf:"provider"` // qdrant, chromem, pgvector
	Collection      string `koanf:"collection"`
	QdrantHost      string `koanf:"qdrant_host"`
	QdrantPort      int    `koanf:"qdrant_port"`
	QdrantAPIKey    Secret `koanf:"qdrant_api_key"`
	QdrantUseTLS    bool   `koanf:"qdrant_use_tls"`
	ChromemPath     string `koanf:"chromem_path"` // empty keeps the index in memory
	ChromemCompress bool   `koanf:"chromem_compress"`
}

// DatabaseConfig configures the relational metadata store.
type DatabaseConfig struct {
	Driver       string   `koanf:"driver"` // postgres, sqlite
	URL          Secret   `koanf:"url"`
	SQLitePath   string   `koanf:"sqlite_path"`
	ConnectTries int      `koanf:"connect_tries"`
	ConnectDelay Duration `koanf:"connect_delay"`
	MaxConns     int32    `koanf:"max_conns"`
}

// StorageConfig configures raw upload storage.
type StorageConfig struct {
	Root string `koanf:"root"`
}

// PromptsConfig configures system prompt resolution.
type PromptsConfig struct {
	Name      string   `koanf:"name"`
	Label     string   `koanf:"label"`
	RemoteURL string   `koanf:"remote_url"`
	PublicKey Secret   `koanf:"public_key"`
	SecretKey Secret   `koanf:"secret_key"`
	CacheTTL  Duration `koanf:"cache_ttl"`
	File      string   `koanf:"file"`
	Timeout   Duration `koanf:"timeout"`
}

// RedactionConfig controls secret scrubbing of extracted text.
type RedactionConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Allowlist string `koanf:"allowlist"`
}

// EventsConfig configures NATS event publishing.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// WorkflowsConfig configures the Temporal summary back-fill worker.
type WorkflowsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
	BatchSize int    `koanf:"batch_size"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"` // grpc, http/protobuf
	Insecure        bool    `koanf:"insecure"`
	ServiceName     string  `koanf:"service_name"`
	SamplingRate    float64 `koanf:"sampling_rate"`
}

// LoggingConfig holds the subset of logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
			BodyLimit:       "20M",
		},
		Ingest: IngestConfig{
			ChunkSize:        800,
			ChunkOverlap:     100,
			Cooldown:         Duration(60 * time.Second),
			MinTextLength:    50,
			EmbedConcurrency: 4,
			SummaryMaxChars:  15000,
			Timeout:          Duration(5 * time.Minute),
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "openai",
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:             "gemini-embedding-001",
			Dimension:         768,
			RequestsPerSecond: 10,
			Timeout:           Duration(30 * time.Second),
		},
		Generation: GenerationConfig{
			Provider: "openai",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:    "gemini-2.5-flash",
			Timeout:  Duration(60 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			Provider:   "chromem",
			Collection: "documents",
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			SQLitePath:   "docrag.db",
			ConnectTries: 10,
			ConnectDelay: Duration(2 * time.Second),
			MaxConns:     10,
		},
		Storage: StorageConfig{
			Root: "uploads",
		},
		Prompts: PromptsConfig{
			Name:     "rag-system-prompt",
			Label:    "production",
			CacheTTL: Duration(5 * time.Minute),
			Timeout:  Duration(5 * time.Second),
		},
		Events: EventsConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "docrag.events",
		},
		Workflows: WorkflowsConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "docrag-summaries",
			BatchSize: 20,
		},
		Observability: ObservabilityConfig{
			Endpoint:     "localhost:4317",
			Protocol:     "grpc",
			Insecure:     true,
			ServiceName:  "docrag",
			SamplingRate: 1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap))
	}
	if c.Ingest.Cooldown.Duration() < 0 {
		errs = append(errs, errors.New("ingest.cooldown cannot be negative"))
	}
	if c.Ingest.EmbedConcurrency <= 0 {
		errs = append(errs, errors.New("ingest.embed_concurrency must be positive"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}

	if c.Embeddings.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embeddings.Dimension))
	}
	switch c.Embeddings.Provider {
	case "openai", "ollama", "fastembed":
	default:
		errs = append(errs, fmt.Errorf("unknown embeddings.provider %q", c.Embeddings.Provider))
	}
	switch c.Generation.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown generation.provider %q", c.Generation.Provider))
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant", "pgvector":
	default:
		errs = append(errs, fmt.Errorf("unknown vectorstore.provider %q", c.VectorStore.Provider))
	}
	if c.VectorStore.Collection == "" {
		errs = append(errs, errors.New("vectorstore.collection is required"))
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database.sqlite_path is required for sqlite"))
		}
	case "postgres":
		if !c.Database.URL.IsSet() {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.VectorStore.Provider == "pgvector" && !c.Database.URL.IsSet() {
		errs = append(errs, errors.New("vectorstore.provider pgvector requires database.url"))
	}

	if c.Storage.Root == "" {
		errs = append(errs, errors.New("storage.root is required"))
	}
	if c.Events.Enabled && c.Events.URL == "" {
		errs = append(errs, errors.New("events.url is required when events are enabled"))
	}
	if c.Workflows.Enabled && c.Workflows.TaskQueue == "" {
		errs = append(errs, errors.New("workflows.task_queue is required when workflows are enabled"))
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		errs = append(errs, errors.New("service name required when telemetry is enabled"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
