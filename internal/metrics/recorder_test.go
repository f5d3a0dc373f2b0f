package metrics

import (
	"errors"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, ResultSuccess, Outcome(nil))
	assert.Equal(t, ResultError, Outcome(errors.New("boom")))
}

func TestNoopRecorder_DoesNotPanic(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveOpDuration("insert_one", time.Millisecond)
	r.IncOpResult("insert_one", ResultSuccess)
}

func TestPrometheusRecorder_Registers(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveOpDuration("get_events", 10*time.Millisecond)
	r.IncOpResult("get_events", ResultSuccess)
	r.IncOpResult("get_events", ResultError)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tidemark_storage_op_duration_seconds")
	assert.Contains(t, names, "tidemark_storage_op_results_total")
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.ObserveOpDuration("x", time.Second)
	r.IncOpResult("x", ResultSuccess)
}
