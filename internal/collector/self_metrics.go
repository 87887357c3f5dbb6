package collector

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/discovery"
	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/rpcclient"
)

var (
	passDurationHistogram  prometheus.Histogram
	passesTotalCounter     prometheus.Counter
	passErrorsTotalCounter prometheus.Counter
	rpcErrorsTotalCounter  *prometheus.CounterVec
	targetsDiscoveredGauge prometheus.Gauge
	exporterHealthGauge    prometheus.Gauge
	buildInfoGauge         *prometheus.GaugeVec
)

// ConfigureSelfMetrics registers the exporter's self-observability metrics
// into the given registry and sets the build info series.
func ConfigureSelfMetrics(registry *prometheus.Registry, version, commit, date string) {
	passDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: prometheusNamespace,
		Subsystem: prometheusExporterSubsystem,
		Name:      "pass_duration_seconds",
		Help:      "Duration of one collection pass, in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
	registry.MustRegister(passDurationHistogram)

	passesTotalCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: prometheusNamespace,
		Subsystem: prometheusExporterSubsystem,
		Name:      "passes_total",
		Help:      "Total number of collection passes started.",
	})
	registry.MustRegister(passesTotalCounter)

	passErrorsTotalCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: prometheusNamespace,
		Subsystem: prometheusExporterSubsystem,
		Name:      "pass_errors_total",
		Help:      "Total number of passes that hit degraded discovery.",
	})
	registry.MustRegister(passErrorsTotalCounter)

	rpcErrorsTotalCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: prometheusNamespace,
		Subsystem: prometheusExporterSubsystem,
		Name:      "rpc_errors_total",
		Help:      "Total number of failed target probes, by error class.",
	}, []string{"class"})
	registry.MustRegister(rpcErrorsTotalCounter)

	targetsDiscoveredGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: prometheusNamespace,
		Subsystem: prometheusExporterSubsystem,
		Name:      "targets_discovered",
		Help:      "Number of node pods DNS discovery resolved in the last pass.",
	})
	registry.MustRegister(targetsDiscoveredGauge)

	exporterHealthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: prometheusNamespace,
		Subsystem: prometheusExporterSubsystem,
		Name:      "health",
		Help:      "Exporter health status: 1=healthy, 0=unhealthy.",
	})
	registry.MustRegister(exporterHealthGauge)

	buildInfoGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: prometheusNamespace,
		Subsystem: prometheusExporterSubsystem,
		Name:      "build_info",
		Help:      "Build information for this exporter.",
	}, []string{"version", "commit", "date"})
	registry.MustRegister(buildInfoGauge)

	buildInfoGauge.WithLabelValues(version, commit, date).Set(1)
}

// ObservePassDuration records a single pass duration.
func ObservePassDuration(duration time.Duration) {
	if passDurationHistogram != nil {
		passDurationHistogram.Observe(duration.Seconds())
	}
}

// IncPasses increments the total passes counter.
func IncPasses() {
	if passesTotalCounter != nil {
		passesTotalCounter.Inc()
	}
}

// IncPassErrors increments the degraded-pass counter.
func IncPassErrors() {
	if passErrorsTotalCounter != nil {
		passErrorsTotalCounter.Inc()
	}
}

// IncRPCError counts one failed target probe under its error class.
func IncRPCError(probeErr error) {
	if rpcErrorsTotalCounter != nil {
		rpcErrorsTotalCounter.WithLabelValues(errorClass(probeErr)).Inc()
	}
}

// SetTargetsDiscovered records how many pods the last pass resolved.
func SetTargetsDiscovered(count int) {
	if targetsDiscoveredGauge != nil {
		targetsDiscoveredGauge.Set(float64(count))
	}
}

// SetExporterHealth sets the health gauge to 1 or 0.
func SetExporterHealth(healthy bool) {
	if exporterHealthGauge == nil {
		return
	}

	if healthy {
		exporterHealthGauge.Set(1)
	} else {
		exporterHealthGauge.Set(0)
	}
}

// errorClass maps a probe error onto the label values of rpc_errors_total.
func errorClass(probeErr error) string {
	switch {
	case errors.Is(probeErr, rpcclient.ErrAuthFailed):
		return "auth"
	case errors.Is(probeErr, rpcclient.ErrProtocol):
		return "protocol"
	case errors.Is(probeErr, rpcclient.ErrUnreachable):
		return "unreachable"
	case errors.Is(probeErr, discovery.ErrDegraded):
		return "discovery"
	default:
		return "other"
	}
}
