// Package logging provides structured logging with OpenTelemetry integration.
//
// The Logger wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout and OpenTelemetry outputs
//   - automatic context fields (trace_id, span_id, request.id, document.path)
//   - secret redaction by field name and value pattern
//   - level-aware sampling (errors are never sampled)
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRequestID(ctx, "req-42")
//	ctx = logging.WithDocumentPath(ctx, "1700000000000-handbook.pdf")
//	logger.Info(ctx, "document ingested", zap.Int("chunks", 12))
//
// Tests use NewTestLogger, which records entries in memory:
//
//	logger := logging.NewTestLogger()
//	svc := ingest.NewService(..., logger.Logger)
//	logger.AssertLogged(t, zapcore.WarnLevel, "chunk dropped")
package logging
