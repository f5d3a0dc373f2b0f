// Package metrics defines the observability hooks the datastore facade
// records into. The default recorder is a no-op; deployments that scrape
// Prometheus install the PrometheusRecorder instead.
package metrics

import "time"

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultError   ResultLabel = "error"
)

// Outcome maps an operation error to its result label.
func Outcome(err error) ResultLabel {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// Recorder defines observability hooks for storage operations.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// ObserveOpDuration records how long a storage operation took.
	ObserveOpDuration(op string, d time.Duration)

	// IncOpResult counts a finished storage operation by outcome.
	IncOpResult(op string, result ResultLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are
// not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveOpDuration(string, time.Duration) {}
func (NoopRecorder) IncOpResult(string, ResultLabel)         {}
