package toolchain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvocationsTotal counts validator runs.
	// Labels: result (success, failure, skipped, timeout)
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forge",
			Subsystem: "toolchain",
			Name:      "invocations_total",
			Help:      "Total number of commcare-cli validation runs by result",
		},
		[]string{"result"},
	)

	// InvocationDuration tracks how long commcare-cli runs take.
	InvocationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "forge",
			Subsystem: "toolchain",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of commcare-cli validation runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		},
	)

	// ProbesTotal counts uncached availability probes.
	// Labels: available (true, false)
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forge",
			Subsystem: "toolchain",
			Name:      "probes_total",
			Help:      "Total number of toolchain availability probes",
		},
		[]string{"available"},
	)
)

func recordProbe(a Availability) {
	if a.Available {
		ProbesTotal.WithLabelValues("true").Inc()
		return
	}
	ProbesTotal.WithLabelValues("false").Inc()
}
