package vectorstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var tracer = otel.Tracer("docrag.vectorstore.qdrant")

// pointNamespace seeds the name-based UUIDs used as Qdrant point IDs.
var pointNamespace = uuid.MustParse("6f1c2a8e-4a63-5d1b-9a57-3c2e8d0b7f41")

// Payload keys written with every point.
const (
	payloadID         = "id"
	payloadText       = "text"
	payloadSource     = "source"
	payloadChunkIndex = "chunk_index"
)

// QdrantConfig holds configuration for the Qdrant backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string

	// Port is the Qdrant gRPC port (default 6334).
	Port int

	// APIKey authenticates against Qdrant Cloud. Empty for local servers.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// CollectionName is the collection holding chunk vectors.
	CollectionName string

	// VectorSize is the embedding dimension used when creating the collection.
	VectorSize uint64

	// MaxMessageSize caps gRPC message size in bytes (default 50MB).
	MaxMessageSize int

	// Retry controls query retries.
	Retry RetryConfig
}

// ApplyDefaults fills unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.Retry == (RetryConfig{}) {
		c.Retry = DefaultRetryConfig()
	}
}

// Validate checks the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: qdrant host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid qdrant port %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.CollectionName)
}

// qdrantAPI is the subset of *qdrant.Client used by QdrantStore.
type qdrantAPI interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// QdrantStore is a Store backed by Qdrant's native gRPC API.
type QdrantStore struct {
	client  qdrantAPI
	config  QdrantConfig
	retry   *retrier
	logger  *zap.Logger
	ensured atomic.Bool
}

// NewQdrantStore connects to Qdrant and verifies the server is reachable.
func NewQdrantStore(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, TLS disabled",
			zap.String("host", config.Host), zap.Int("port", config.Port))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := newQdrantStore(client, config, logger)

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Health(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

func newQdrantStore(client qdrantAPI, config QdrantConfig, logger *zap.Logger) *QdrantStore {
	return &QdrantStore{
		client: client,
		config: config,
		retry:  newRetrier(config.Retry),
		logger: logger,
	}
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Health checks the Qdrant connection.
func (s *QdrantStore) Health(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Health")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// EnsureCollection creates the collection with cosine distance if it is missing.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	if s.ensured.Load() {
		return nil
	}

	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int64("vector_size", int64(s.config.VectorSize)),
	)

	var exists bool
	err := s.retry.do(ctx, "collection_exists", func() error {
		info, err := s.client.GetCollectionInfo(ctx, s.config.CollectionName)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", s.config.CollectionName, err)
	}

	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.config.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !isAlreadyExists(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
		}
		s.logger.Info("created qdrant collection",
			zap.String("collection", s.config.CollectionName),
			zap.Uint64("vector_size", s.config.VectorSize))
	}

	s.ensured.Store(true)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert writes all records in one waited request. It is not retried.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.String("collection", s.config.CollectionName),
	)

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = toPoint(r)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.CollectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: upserting %d points to %s: %v", ErrStoreWrite, len(points), s.config.CollectionName, err)
	}

	span.SetStatus(codes.Ok, "success")
	return len(points), nil
}

// Query returns the topK nearest points in the order Qdrant reports them.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
	defer span.End()
	span.SetAttributes(
		attribute.Int("top_k", topK),
		attribute.String("collection", s.config.CollectionName),
	)

	var results []*qdrant.ScoredPoint
	err := s.retry.do(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}

	matches := make([]Match, 0, len(results))
	for _, p := range results {
		matches = append(matches, fromScoredPoint(p))
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Delete removes the points for the given record IDs in one waited request.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
		attribute.String("collection", s.config.CollectionName),
	)

	points := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		points[i] = qdrant.NewIDUUID(PointID(id))
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.CollectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(points...),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: deleting %d points from %s: %v", ErrStoreWrite, len(ids), s.config.CollectionName, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// PointID maps a record ID to its deterministic Qdrant UUID.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

func toPoint(r Record) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(PointID(r.ID)),
		Vectors: qdrant.NewVectors(r.Values...),
		Payload: map[string]*qdrant.Value{
			payloadID:         {Kind: &qdrant.Value_StringValue{StringValue: r.ID}},
			payloadText:       {Kind: &qdrant.Value_StringValue{StringValue: r.Metadata.Text}},
			payloadSource:     {Kind: &qdrant.Value_StringValue{StringValue: r.Metadata.Source}},
			payloadChunkIndex: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(r.Metadata.ChunkIndex)}},
		},
	}
}

func fromScoredPoint(p *qdrant.ScoredPoint) Match {
	m := Match{Score: p.GetScore()}
	payload := p.GetPayload()
	m.ID = payload[payloadID].GetStringValue()
	m.Metadata.Text = payload[payloadText].GetStringValue()
	m.Metadata.Source = payload[payloadSource].GetStringValue()
	m.Metadata.ChunkIndex = int(payload[payloadChunkIndex].GetIntegerValue())
	if m.ID == "" {
		m.ID = p.GetId().GetUuid()
	}
	return m
}

func isAlreadyExists(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.AlreadyExists
}
