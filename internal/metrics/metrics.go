// Package metrics exposes Prometheus instrumentation for evaluations and
// model reloads.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for evaluations.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Reload sources.
const (
	SourceStore    = "store"
	SourceFile     = "file"
	SourceSchedule = "schedule"
	SourceAPI      = "api"
)

// Metrics holds the service collectors. All methods are safe on a nil
// receiver so components can run uninstrumented in tests.
type Metrics struct {
	Evaluations        *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	ModelsLoaded       prometheus.Gauge
	ModelReloads       *prometheus.CounterVec
}

// New registers the collectors with reg. Each server and each test uses its
// own registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "decisions_evaluations_total",
			Help: "Total model evaluations by model and outcome",
		}, []string{"model", "outcome"}),

		EvaluationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "decisions_evaluation_duration_seconds",
			Help:    "Duration of a single model evaluation",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"model"}),

		ModelsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "decisions_models_loaded",
			Help: "Number of models currently loaded in the registry",
		}),

		ModelReloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "decisions_model_reloads_total",
			Help: "Model reload attempts by source and status",
		}, []string{"source", "status"}),
	}
}

// ObserveEvaluation records one evaluation of model.
func (m *Metrics) ObserveEvaluation(model string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.Evaluations.WithLabelValues(model, outcome).Inc()
	m.EvaluationDuration.WithLabelValues(model).Observe(d.Seconds())
}

// SetModelsLoaded reports the registry size.
func (m *Metrics) SetModelsLoaded(n int) {
	if m != nil {
		m.ModelsLoaded.Set(float64(n))
	}
}

// IncrementReload records a reload attempt from source.
func (m *Metrics) IncrementReload(source string, err error) {
	if m == nil {
		return
	}
	status := OutcomeSuccess
	if err != nil {
		status = OutcomeError
	}
	m.ModelReloads.WithLabelValues(source, status).Inc()
}
