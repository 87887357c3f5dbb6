package collector

// Centralized metric naming. Node metrics keep the names the dashboards were
// built against; exporter self-observability lives under its own subsystem.

const (
	// Global namespace for all metrics in this project.
	prometheusNamespace = "bitcoin"

	// Subsystem for exporter self-observability.
	prometheusExporterSubsystem = "exporter"

	// Label carrying the originating pod identity on every node metric.
	podLabel = "pod"
)

// Node metric names (namespace-qualified by prometheus.BuildFQName).
const (
	metricUp                   = "up"
	metricBlocks               = "blocks"
	metricPeers                = "peers"
	metricConnections          = "connections"
	metricDifficulty           = "difficulty"
	metricVerificationProgress = "verification_progress"
)
