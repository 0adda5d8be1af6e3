package prediction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StaffPulse/internal/domain/models"
	xhttp "StaffPulse/pkg/http"
)

func testSnapshot() models.MetricsSnapshot {
	return models.MetricsSnapshot{
		UnitID:             "icu-a",
		Timestamp:          time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC),
		PatientLoad:        120,
		ICUOccupancy:       0.7,
		EmergencyOccupancy: 0.5,
		StaffAvailable:     map[models.Role]int{models.RoleDoctor: 10, models.RoleNurse: 30},
		ExternalRisk:       0.2,
	}
}

func modelServer(t *testing.T, status int, body string, seen *predictRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, predictPath, r.URL.Path)
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPPredictorReturnsProbability(t *testing.T) {
	var seen predictRequest
	srv := modelServer(t, http.StatusOK, `{"probability":0.42,"model":"xgb-v3"}`, &seen)
	p, err := NewHTTPPredictor(srv.URL+"/", time.Second)
	require.NoError(t, err)

	v, err := p.PredictLoadRisk(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 0.42, v)
	assert.Equal(t, "icu-a", seen.UnitID)
	assert.Equal(t, 40, seen.TotalStaff)
	assert.Equal(t, 30, seen.StaffAvailable["nurse"])
}

func TestHTTPPredictorRejectsBadAnswers(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"out of range": {http.StatusOK, `{"probability":1.7}`},
		"missing":      {http.StatusOK, `{"model":"xgb-v3"}`},
		"server error": {http.StatusInternalServerError, `boom`},
		"not json":     {http.StatusOK, `<html>`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := modelServer(t, tc.status, tc.body, nil)
			p, err := NewHTTPPredictor(srv.URL, time.Second)
			require.NoError(t, err)
			_, err = p.PredictLoadRisk(context.Background(), testSnapshot())
			assert.Error(t, err)
		})
	}
}

func TestHTTPPredictorStatusErrorIsTyped(t *testing.T) {
	srv := modelServer(t, http.StatusServiceUnavailable, `warming up`, nil)
	p, err := NewHTTPPredictor(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = p.PredictLoadRisk(context.Background(), testSnapshot())
	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, "warming up", se.Body)
}

func TestHTTPPredictorHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p, err := NewHTTPPredictor(srv.URL, 5*time.Second)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = p.PredictLoadRisk(ctx, testSnapshot())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewHTTPPredictorRequiresURL(t *testing.T) {
	_, err := NewHTTPPredictor("", time.Second)
	assert.Error(t, err)
}
