package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"StaffPulse/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	riskScore     *prometheus.GaugeVec
	classGauge    *prometheus.GaugeVec
	alerts        *prometheus.CounterVec
	modelFallback *prometheus.CounterVec
	auditFailures *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	cycleDuration prometheus.Histogram
}

// New registers the recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staffpulse_decision_cycles_total",
				Help: "Evaluated decision cycles by unit and resulting classification",
			},
			[]string{"unit", "classification"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staffpulse_classification_transitions_total",
				Help: "Classification changes by unit",
			},
			[]string{"unit", "from", "to"},
		),
		riskScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "staffpulse_risk_score",
				Help: "Latest risk score per unit",
			},
			[]string{"unit"},
		),
		classGauge: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "staffpulse_classification",
				Help: "Current classification per unit (0 normal, 1 proactive, 2 emergency)",
			},
			[]string{"unit"},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staffpulse_alerts_total",
				Help: "Emergency alerts by outcome (sent, suppressed, failed)",
			},
			[]string{"unit", "outcome"},
		),
		modelFallback: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staffpulse_model_fallback_total",
				Help: "Cycles scored on rules only because the model was unavailable",
			},
			[]string{"unit"},
		),
		auditFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staffpulse_audit_failures_total",
				Help: "Decisions that could not be appended to the ledger",
			},
			[]string{"unit"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staffpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		cycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "staffpulse_decision_cycle_seconds",
				Help:    "Duration of a decision cycle in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
	}
}

func (r *Recorder) RecordCycle(unitID string, class models.Classification, risk float64, d time.Duration) {
	r.cycles.WithLabelValues(unitID, class.String()).Inc()
	r.riskScore.WithLabelValues(unitID).Set(risk)
	r.classGauge.WithLabelValues(unitID).Set(float64(class))
	r.cycleDuration.Observe(d.Seconds())
}

func (r *Recorder) RecordTransition(unitID string, from, to models.Classification) {
	r.transitions.WithLabelValues(unitID, from.String(), to.String()).Inc()
}

func (r *Recorder) RecordAlert(unitID, outcome string) {
	r.alerts.WithLabelValues(unitID, outcome).Inc()
}

func (r *Recorder) RecordModelFallback(unitID string) {
	r.modelFallback.WithLabelValues(unitID).Inc()
}

func (r *Recorder) RecordAuditFailure(unitID string) {
	r.auditFailures.WithLabelValues(unitID).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
