package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveEvaluation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveEvaluation("routing", nil, time.Millisecond)
	m.ObserveEvaluation("routing", nil, time.Millisecond)
	m.ObserveEvaluation("routing", errors.New("no match"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("routing", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("routing", OutcomeError)))
}

func TestModelGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetModelsLoaded(3)
	m.IncrementReload(SourceFile, nil)
	m.IncrementReload(SourceFile, errors.New("bad yaml"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ModelsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelReloads.WithLabelValues(SourceFile, OutcomeError)))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEvaluation("x", nil, time.Second)
		m.SetModelsLoaded(1)
		m.IncrementReload(SourceAPI, nil)
	})
}
