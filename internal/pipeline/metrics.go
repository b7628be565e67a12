package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kcowger/commcare-forge-sub001/internal/pipeline"

// metrics holds the pipeline instruments.
type metrics struct {
	runs     metric.Int64Counter
	attempts metric.Int64Counter
	fixes    metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	m := &metrics{}
	var err error

	m.runs, err = meter.Int64Counter(
		"forge.pipeline.runs",
		metric.WithDescription("Pipeline operations by operation and outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.attempts, err = meter.Int64Counter(
		"forge.pipeline.attempts",
		metric.WithDescription("Pipeline attempts by operation and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.fixes, err = meter.Int64Counter(
		"forge.pipeline.fixes",
		metric.WithDescription("Auto-fixes applied by detector"),
		metric.WithUnit("{fix}"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram(
		"forge.pipeline.duration.seconds",
		metric.WithDescription("Duration of pipeline operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metrics) recordRun(ctx context.Context, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *metrics) recordAttempt(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func (m *metrics) recordFix(ctx context.Context, detector string) {
	if m == nil {
		return
	}
	m.fixes.Add(ctx, 1, metric.WithAttributes(attribute.String("detector", detector)))
}
