package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/kcowger/commcare-forge-sub001/internal/pipeline"
	"github.com/kcowger/commcare-forge-sub001/internal/secrets"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := NewHTTPMetrics(mp.Meter(httpInstrumentationName), zap.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/generate", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt field is required")
	})

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	foundRequests := false
	foundDuration := false
	statuses := map[int64]int64{}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "forge.http.requests_total":
				foundRequests = true
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("unexpected data type %T", m.Data)
				}
				for _, dp := range sum.DataPoints {
					status, _ := dp.Attributes.Value("status")
					statuses[status.AsInt64()] += dp.Value
				}
			case "forge.http.request_duration_seconds":
				foundDuration = true
				if hist, ok := m.Data.(metricdata.Histogram[float64]); ok {
					total := uint64(0)
					for _, dp := range hist.DataPoints {
						total += dp.Count
					}
					if total != 3 {
						t.Errorf("expected 3 duration recordings, got %d", total)
					}
				}
			}
		}
	}

	if !foundRequests {
		t.Error("requests counter not found")
	}
	if !foundDuration {
		t.Error("duration histogram not found")
	}
	if statuses[http.StatusOK] != 2 {
		t.Errorf("expected 2 requests with status 200, got %d", statuses[http.StatusOK])
	}
	if statuses[http.StatusBadRequest] != 1 {
		t.Errorf("expected 1 request with status 400, got %d", statuses[http.StatusBadRequest])
	}
}

func TestServer_RecordsUploadSize(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	p := &stubPipeline{result: &pipeline.Result{Success: true}}
	server, err := NewServer(p, staticCapability{}, secrets.NoopScrubber{}, zap.NewNop(), nil,
		WithMeter(mp.Meter(httpInstrumentationName)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	req := uploadRequest(t, "/api/v1/validate", "household.ccz", make([]byte, 2048), nil)
	server.Echo().ServeHTTP(httptest.NewRecorder(), req)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "forge.http.upload_size_bytes" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[int64])
			if !ok || len(hist.DataPoints) != 1 {
				t.Fatalf("unexpected upload histogram: %+v", m.Data)
			}
			if hist.DataPoints[0].Sum != 2048 {
				t.Errorf("expected upload sum 2048, got %d", hist.DataPoints[0].Sum)
			}
			return
		}
	}
	t.Error("upload size histogram not found")
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/health", "/health"},
		{"/api/v1/validate", "/api/v1/validate"},
		{"/api/v1/toolchain", "/api/v1/toolchain"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
