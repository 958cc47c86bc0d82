// Package metrics2 provides a client API for reporting metrics, backed by
// Prometheus. Metrics are identified by a measurement name plus a set of
// tags which become labels.
package metrics2

import (
	"time"
)

// Int64Metric is a metric which reports an int64 gauge.
type Int64Metric interface {
	// Delete removes the metric from its Client's registry.
	Delete() error

	// Get returns the current value of the metric.
	Get() int64

	// Update adds a data point to the metric.
	Update(v int64)
}

// Float64Metric is a metric which reports a float64 gauge.
type Float64Metric interface {
	// Delete removes the metric from its Client's registry.
	Delete() error

	// Get returns the current value of the metric.
	Get() float64

	// Update adds a data point to the metric.
	Update(v float64)
}

// Float64SummaryMetric is a metric which reports a summary over observed
// float64 values.
type Float64SummaryMetric interface {
	// Observe adds a data point to the summary.
	Observe(v float64)
}

// Counter is a metric which reports a value that can be incremented,
// decremented, and reset.
type Counter interface {
	// Dec decrements the counter by the given quantity.
	Dec(i int64)

	// Delete removes the counter from its Client's registry.
	Delete() error

	// Get returns the current value of the counter.
	Get() int64

	// Inc increments the counter by the given quantity.
	Inc(i int64)

	// Reset sets the counter to zero.
	Reset()
}

// Liveness keeps a time-since-last-successful-update metric, in seconds.
// Every periodic process should have one, with an alert on the value growing
// too large.
type Liveness interface {
	// Get returns the current value of the Liveness, in seconds.
	Get() int64

	// ManualReset sets the last-successful-update time of the Liveness to a
	// specific value. Useful for testing.
	ManualReset(lastSuccessfulUpdate time.Time)

	// Reset should be called when some work has been successfully completed.
	Reset()
}

// Timer measures a duration and reports it into a Float64SummaryMetric when
// stopped.
type Timer interface {
	// Start (re)starts the timer.
	Start()

	// Stop records the elapsed time and returns it.
	Stop() time.Duration
}

// Client represents a set of metrics.
type Client interface {
	// GetCounter creates or retrieves a Counter with the given name and tags.
	GetCounter(name string, tags ...map[string]string) Counter

	// GetFloat64Metric creates or retrieves a Float64Metric with the given
	// name and tags.
	GetFloat64Metric(name string, tags ...map[string]string) Float64Metric

	// GetFloat64SummaryMetric creates or retrieves a Float64SummaryMetric
	// with the given name and tags.
	GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric

	// GetInt64Metric creates or retrieves an Int64Metric with the given name
	// and tags.
	GetInt64Metric(name string, tags ...map[string]string) Int64Metric

	// NewLiveness creates a new Liveness metric with the given name and tags.
	NewLiveness(name string, tags ...map[string]string) Liveness

	// NewTimer creates and starts a new Timer with the given name and tags.
	NewTimer(name string, tags ...map[string]string) Timer
}

var defaultClient Client = newPromClient()

// GetCounter creates or retrieves a Counter using the default client.
func GetCounter(name string, tags ...map[string]string) Counter {
	return defaultClient.GetCounter(name, tags...)
}

// GetFloat64Metric creates or retrieves a Float64Metric using the default
// client.
func GetFloat64Metric(measurement string, tags ...map[string]string) Float64Metric {
	return defaultClient.GetFloat64Metric(measurement, tags...)
}

// GetInt64Metric creates or retrieves an Int64Metric using the default
// client.
func GetInt64Metric(measurement string, tags ...map[string]string) Int64Metric {
	return defaultClient.GetInt64Metric(measurement, tags...)
}

// NewLiveness creates a new Liveness using the default client.
func NewLiveness(name string, tags ...map[string]string) Liveness {
	return defaultClient.NewLiveness(name, tags...)
}

// NewTimer creates and starts a new Timer using the default client.
func NewTimer(name string, tags ...map[string]string) Timer {
	return defaultClient.NewTimer(name, tags...)
}
