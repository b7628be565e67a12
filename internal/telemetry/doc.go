// Package telemetry sets up OpenTelemetry tracing and metrics for
// commcare-forge and exports them over OTLP (gRPC or HTTP).
//
// # Usage
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	orch := pipeline.New(gen, validators, exporter,
//	    pipeline.WithTracer(tel.Tracer("pipeline")),
//	    pipeline.WithMeter(tel.Meter("pipeline")))
//
// When telemetry is disabled, Tracer and Meter return the global no-op
// implementations, so callers never need to check.
//
// # Testing
//
// NewTestTelemetry records spans and metrics in memory:
//
//	tel := telemetry.NewTestTelemetry()
//	// run code using tel.Tracer(...) and tel.Meter(...)
//	tel.AssertSpanExists(t, "pipeline.validate_upload")
//	runs := tel.CounterValue(t, "forge.pipeline.runs")
package telemetry
