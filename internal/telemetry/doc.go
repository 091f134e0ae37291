// Package telemetry wires OpenTelemetry tracing and metrics for docrag and
// provides the observability hooks the ingestion and answer pipelines report
// through.
//
// # Providers
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// When disabled, Tracer and Meter return the global no-op implementations.
// Exporter failures degrade the instance instead of failing startup.
//
// # Hooks
//
// Hooks combine a tracer, structured logging and a list of event sinks:
//
//	hooks := telemetry.NewHooks(tel.Tracer("docrag"), logger, telemetry.NewLogSink(logger), publisher)
//	ctx, span := hooks.Start(ctx, "ingest.document")
//	defer span.End(err)
//
// Sink failures and panics never reach the caller. A nil *Hooks is a no-op.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	hooks := telemetry.NewHooks(tt.Tracer("test"), logging.NewNop())
//	...
//	tt.AssertSpanExists(t, "answer.question")
package telemetry
