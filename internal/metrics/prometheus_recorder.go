package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	opDuration *prom.HistogramVec
	opResults  *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the storage metrics on reg.
// A nil registry gets a fresh private one (useful in tests).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		opDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "tidemark",
			Name:      "storage_op_duration_seconds",
			Help:      "Duration of individual storage operations",
			Buckets:   prom.DefBuckets,
		}, []string{"op"}),
		opResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tidemark",
			Name:      "storage_op_results_total",
			Help:      "Storage operation counts by outcome",
		}, []string{"op", "result"}),
	}
	reg.MustRegister(pr.opDuration, pr.opResults)
	return pr
}

func (p *PrometheusRecorder) ObserveOpDuration(op string, d time.Duration) {
	if p == nil || p.opDuration == nil {
		return
	}
	p.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncOpResult(op string, result ResultLabel) {
	if p == nil || p.opResults == nil {
		return
	}
	p.opResults.WithLabelValues(op, string(result)).Inc()
}
