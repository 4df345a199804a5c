package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncIngestions increments the ingestion counter.
	IncIngestions(format string, success bool)

	// ObserveIngestDuration records ingestion duration.
	ObserveIngestDuration(format string, duration time.Duration)

	// SetLayerCount sets the number of layers of a kind.
	SetLayerCount(kind string, count int)

	// IncViewportCommands increments the viewport command counter.
	IncViewportCommands(command string)

	// SetViewportConnected records whether a map client is mounted.
	SetViewportConnected(connected bool)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncIngestions implements MetricsCollector.
func (n *NoOpMetrics) IncIngestions(_ string, _ bool) {}

// ObserveIngestDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveIngestDuration(_ string, _ time.Duration) {}

// SetLayerCount implements MetricsCollector.
func (n *NoOpMetrics) SetLayerCount(_ string, _ int) {}

// IncViewportCommands implements MetricsCollector.
func (n *NoOpMetrics) IncViewportCommands(_ string) {}

// SetViewportConnected implements MetricsCollector.
func (n *NoOpMetrics) SetViewportConnected(_ bool) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
