package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"StaffPulse/internal/domain/models"
)

func TestRecorderCounters(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordCycle("icu-a", models.Emergency, 0.81, 3*time.Millisecond)
	r.RecordCycle("icu-a", models.Emergency, 0.79, 2*time.Millisecond)
	r.RecordTransition("icu-a", models.Normal, models.Emergency)
	r.RecordAlert("icu-a", "sent")
	r.RecordAlert("icu-a", "suppressed")
	r.RecordAuditFailure("icu-a")
	r.RecordError("validation")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cycles.WithLabelValues("icu-a", "emergency")))
	assert.Equal(t, 0.79, testutil.ToFloat64(r.riskScore.WithLabelValues("icu-a")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.classGauge.WithLabelValues("icu-a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("icu-a", "normal", "emergency")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alerts.WithLabelValues("icu-a", "suppressed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.auditFailures.WithLabelValues("icu-a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("validation")))
}

func TestRecordersOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegisterer(prometheus.NewRegistry())
		NewWithRegisterer(prometheus.NewRegistry())
	})
}
