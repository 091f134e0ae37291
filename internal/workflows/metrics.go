package workflows

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/fyrsmithlabs/docrag/internal/workflows"

type activityInstruments struct {
	backfilled metric.Int64Counter
	duration   metric.Float64Histogram
	failures   metric.Int64Counter
}

// instruments binds to the global meter provider on first use, so it sees
// the provider installed at startup. A failed registration leaves that
// instrument nil.
var instruments = sync.OnceValue(func() activityInstruments {
	meter := otel.Meter(meterName)
	var in activityInstruments
	in.backfilled, _ = meter.Int64Counter("docrag.workflows.summary_backfill.updated",
		metric.WithDescription("Document summaries written by the back-fill workflow"),
		metric.WithUnit("{document}"))
	in.duration, _ = meter.Float64Histogram("docrag.workflows.activity.duration",
		metric.WithDescription("Back-fill activity latency"),
		metric.WithUnit("s"))
	in.failures, _ = meter.Int64Counter("docrag.workflows.activity.errors",
		metric.WithDescription("Back-fill activity failures"),
		metric.WithUnit("{error}"))
	return in
})

func recordBackfilled(ctx context.Context) {
	if c := instruments().backfilled; c != nil {
		c.Add(ctx, 1)
	}
}

// observeActivity is deferred by every activity with a pointer to its
// named error result.
func observeActivity(ctx context.Context, name string, start time.Time, errp *error) {
	in := instruments()
	attrs := metric.WithAttributes(attribute.String("activity", name))
	if in.duration != nil {
		in.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if *errp != nil && in.failures != nil {
		in.failures.Add(ctx, 1, attrs)
	}
}
