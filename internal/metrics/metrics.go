package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for calibration runs
type Metrics struct {
	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	SurrogateFits      *prometheus.CounterVec
	SurrogateFitTime   prometheus.Histogram
	BudgetRemaining    prometheus.Gauge
	BestObjective      prometheus.Gauge
	TrainingSetSize    prometheus.Gauge
	PosteriorAccepted  prometheus.Counter
	AcceptanceRate     prometheus.Gauge
}

// New creates and registers all metrics on reg. A nil reg uses a
// fresh private registry so tests never collide.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calib_evaluations_total",
				Help: "Simulator evaluation attempts by phase and result",
			},
			[]string{"phase", "result"},
		),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "calib_evaluation_duration_seconds",
			Help:    "Wall time of simulator evaluations",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		SurrogateFits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calib_surrogate_fits_total",
				Help: "Surrogate refits by kind and result",
			},
			[]string{"kind", "result"},
		),
		SurrogateFitTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "calib_surrogate_fit_seconds",
			Help:    "Wall time of surrogate refits",
			Buckets: prometheus.DefBuckets,
		}),
		BudgetRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Name: "calib_budget_remaining",
			Help: "Evaluation attempts left in the current run",
		}),
		BestObjective: factory.NewGauge(prometheus.GaugeOpts{
			Name: "calib_best_objective",
			Help: "Best observed objective in the current run",
		}),
		TrainingSetSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "calib_training_set_size",
			Help: "Successful samples in the current run",
		}),
		PosteriorAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "calib_posterior_accepted_total",
			Help: "Accepted posterior samples",
		}),
		AcceptanceRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "calib_posterior_acceptance_rate",
			Help: "Acceptance rate of the last rejection-sampling pass",
		}),
	}
}

// ObserveEvaluation records one attempt.
func (m *Metrics) ObserveEvaluation(phase string, failed bool, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if failed {
		result = "failure"
	}
	m.Evaluations.WithLabelValues(phase, result).Inc()
	m.EvaluationDuration.Observe(seconds)
}

// ObserveFit records one surrogate refit.
func (m *Metrics) ObserveFit(kind string, err error, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.SurrogateFits.WithLabelValues(kind, result).Inc()
	m.SurrogateFitTime.Observe(seconds)
}

// ObserveProgress updates the run gauges.
func (m *Metrics) ObserveProgress(remaining, trainingSize int, best float64) {
	if m == nil {
		return
	}
	m.BudgetRemaining.Set(float64(remaining))
	m.TrainingSetSize.Set(float64(trainingSize))
	m.BestObjective.Set(best)
}

// ObservePosterior records a rejection-sampling pass.
func (m *Metrics) ObservePosterior(accepted int, rate float64) {
	if m == nil {
		return
	}
	m.PosteriorAccepted.Add(float64(accepted))
	m.AcceptanceRate.Set(rate)
}
