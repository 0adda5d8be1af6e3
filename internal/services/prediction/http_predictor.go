package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"StaffPulse/internal/domain/models"
	domsvc "StaffPulse/internal/domain/service"
	xhttp "StaffPulse/pkg/http"
)

const predictPath = "/load-risk/predict"

// HTTPPredictor calls the external load-risk model service.
type HTTPPredictor struct {
	client *xhttp.Client
}

func NewHTTPPredictor(baseURL string, timeout time.Duration, opts ...xhttp.ClientOption) (*HTTPPredictor, error) {
	if baseURL == "" {
		return nil, errors.New("model url is required")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	opts = append([]xhttp.ClientOption{xhttp.WithBaseURL(baseURL), xhttp.WithTimeout(timeout)}, opts...)
	return &HTTPPredictor{client: xhttp.NewClient(opts...)}, nil
}

type predictRequest struct {
	UnitID             string         `json:"unit_id"`
	Timestamp          time.Time      `json:"timestamp"`
	PatientLoad        int            `json:"patient_load"`
	ICUOccupancy       float64        `json:"icu_occupancy_ratio"`
	EmergencyOccupancy float64        `json:"emergency_occupancy_ratio"`
	StaffAvailable     map[string]int `json:"staff_available"`
	TotalStaff         int            `json:"total_staff"`
	ExternalRisk       float64        `json:"external_risk_factor"`
}

type predictResponse struct {
	Probability *float64 `json:"probability"`
	Model       string   `json:"model,omitempty"`
}

// PredictLoadRisk returns the model's overload probability for the snapshot.
// A missing or out-of-range probability is an error.
func (p *HTTPPredictor) PredictLoadRisk(ctx context.Context, snap models.MetricsSnapshot) (float64, error) {
	staff := make(map[string]int, len(snap.StaffAvailable))
	for role, n := range snap.StaffAvailable {
		staff[string(role)] = n
	}
	req := predictRequest{
		UnitID:             snap.UnitID,
		Timestamp:          snap.Timestamp.UTC(),
		PatientLoad:        snap.PatientLoad,
		ICUOccupancy:       snap.ICUOccupancy,
		EmergencyOccupancy: snap.EmergencyOccupancy,
		StaffAvailable:     staff,
		TotalStaff:         snap.TotalStaff(),
		ExternalRisk:       snap.ExternalRisk,
	}

	var resp predictResponse
	if err := p.client.PostJSON(ctx, predictPath, req, &resp); err != nil {
		return 0, fmt.Errorf("post load risk: %w", err)
	}
	if resp.Probability == nil {
		return 0, errors.New("model response has no probability")
	}
	v := *resp.Probability
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("model probability %v outside [0,1]", v)
	}
	return v, nil
}

var _ domsvc.LoadRiskPredictor = (*HTTPPredictor)(nil)
