package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StaffPulse/internal/domain/models"
	"StaffPulse/internal/engine"
	"StaffPulse/internal/repository"
	"StaffPulse/internal/service/ratelimit"
	"StaffPulse/internal/services/notify"
	"StaffPulse/internal/usecase"
	"StaffPulse/pkg/cache"
	"StaffPulse/pkg/config"
	xhttp "StaffPulse/pkg/http"
	"StaffPulse/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordCycle(string, models.Classification, float64, time.Duration) {}
func (nopMetrics) RecordTransition(string, models.Classification, models.Classification) {}
func (nopMetrics) RecordAlert(string, string) {}
func (nopMetrics) RecordModelFallback(string) {}
func (nopMetrics) RecordAuditFailure(string) {}
func (nopMetrics) RecordError(string) {}

func newTestEcho(t *testing.T, limiter *ratelimit.Limiter, checks ...HealthCheck) *echo.Echo {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	ledger := repository.NewMemoryLedger(0)

	cycle := usecase.NewDecisionCycle(
		engine.NewScorer(&cfg.Engine, nil, nil),
		engine.NewClassifier(&cfg.Engine),
		engine.NewAdvisor(&cfg.Engine),
		engine.NewDispatcher(&cfg.Alerting, notify.NewLogNotifier(nil), nil),
		repository.NewCacheStateStore(mc, time.Second, nil),
		usecase.NewAuditRecorder(ledger),
		nopMetrics{},
		nil,
		cfg.Engine.Version,
	)
	h := NewDecisionsHandler(logger.Nop(), cycle, usecase.NewHistoryService(ledger), limiter, checks...)

	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const crisisBody = `{"unit_id":"icu-a","timestamp":"2025-03-14T08:00:00Z","patient_load":400,
	"icu_occupancy_ratio":0.9,"emergency_occupancy_ratio":0.85,
	"staff_available":{"doctor":12,"nurse":36,"sister":6,"technician":7},"external_risk_factor":0.1}`

func TestEvaluateEndpoint(t *testing.T) {
	e := newTestEcho(t, nil)

	rec := do(e, http.MethodPost, "/api/v1/decisions/evaluate", crisisBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Status int                     `json:"status"`
		Data   models.EvaluateResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.NotEmpty(t, resp.Data.RecordID)
	assert.False(t, resp.Data.Unaudited)
	assert.Equal(t, models.Emergency, resp.Data.Record.Classification)
	require.NotNil(t, resp.Data.Record.Alert)
	assert.False(t, resp.Data.Record.Alert.Suppressed)

	rec = do(e, http.MethodGet, "/api/v1/units/icu-a/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"current":"emergency"`)
}

func TestEvaluateEndpointRejectsInvalidBody(t *testing.T) {
	e := newTestEcho(t, nil)

	rec := do(e, http.MethodPost, "/api/v1/decisions/evaluate", `{"unit_id":"icu-a","icu_occupancy_ratio":1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "icu_occupancy_ratio")

	rec = do(e, http.MethodPost, "/api/v1/decisions/evaluate", `{"icu_occupancy_ratio":0.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_REQUIRED")

	rec = do(e, http.MethodPost, "/api/v1/decisions/evaluate", `{"unit_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateEndpointRateLimited(t *testing.T) {
	e := newTestEcho(t, ratelimit.New(1, 0.001))

	rec := do(e, http.MethodPost, "/api/v1/decisions/evaluate", crisisBody)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(e, http.MethodPost, "/api/v1/decisions/evaluate", crisisBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")
}

func TestHistoryEndpoints(t *testing.T) {
	e := newTestEcho(t, nil)
	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/v1/decisions/evaluate", crisisBody).Code)

	rec := do(e, http.MethodGet, "/api/v1/units/icu-a/decisions?from=2025-03-14&to=2025-03-15&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Data xhttp.ListDataResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.EqualValues(t, 1, list.Data.Total)

	rec = do(e, http.MethodGet, "/api/v1/units/icu-a/aggregates?granularity=week&from=2025-03-01&to=2025-04-01", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"emergency_cycles":1`)

	rec = do(e, http.MethodGet, "/api/v1/units/icu-a/aggregates?granularity=hour", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/units/icu-a/decisions?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/units/icu-a/decisions?from=2025-03-15&to=2025-03-14", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/units/icu-a/decisions?limit=6000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	healthy := newTestEcho(t, nil, HealthCheck{Name: "ledger", Check: func(context.Context) error { return nil }})
	rec := do(healthy, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ledger":"ok"`)

	broken := newTestEcho(t, nil, HealthCheck{Name: "clickhouse", Check: func(context.Context) error { return errors.New("dial tcp: refused") }})
	rec = do(broken, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "refused")
}
