package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"StaffPulse/internal/domain/models"
	"StaffPulse/internal/domain/service"
	"StaffPulse/pkg/config"
	"StaffPulse/pkg/logger"
)

const (
	FactorOccupancy = "occupancy"
	FactorLoad      = "load"
	FactorShortage  = "shortage"
	FactorExternal  = "external"
)

// Scorer combines rule components with an optional model probability into a risk score.
type Scorer struct {
	cfg       *config.EngineConfig
	predictor service.LoadRiskPredictor
	log       *logger.Logger
}

// NewScorer builds a scorer. predictor may be nil, in which case scoring is rules only.
func NewScorer(cfg *config.EngineConfig, predictor service.LoadRiskPredictor, log *logger.Logger) *Scorer {
	if log == nil {
		log = logger.Nop()
	}
	return &Scorer{cfg: cfg, predictor: predictor, log: log}
}

// Score validates the snapshot and computes its risk. The only error returned is a
// *models.ValidationError; model failures are recorded on the score instead.
func (s *Scorer) Score(ctx context.Context, snap models.MetricsSnapshot) (models.RiskScore, error) {
	if err := snap.Validate(); err != nil {
		return models.RiskScore{}, err
	}

	occupancy := math.Max(snap.ICUOccupancy, snap.EmergencyOccupancy)
	load := s.loadRatio(snap)
	shortage := s.shortage(snap)
	external := snap.ExternalRisk

	var rs models.RiskScore
	if s.predictor != nil {
		p, err := s.predict(ctx, snap)
		if err != nil {
			rs.ModelError = err.Error()
			s.log.Debug("model unavailable, scoring on rules",
				logger.String("unit", snap.UnitID), logger.Error(err))
		} else {
			alpha := s.cfg.Model.BlendAlpha
			load = alpha*p + (1-alpha)*load
			rs.ModelUsed = true
			rs.ModelProbability = p
		}
	}

	w := s.cfg.Weights
	rs.Factors = []models.Factor{
		factor(FactorOccupancy, w.Occupancy, occupancy),
		factor(FactorLoad, w.Load, load),
		factor(FactorShortage, w.Shortage, shortage),
		factor(FactorExternal, w.External, external),
	}
	var total float64
	for _, f := range rs.Factors {
		total += f.Contribution
	}
	rs.Value = clamp01(total)
	return rs, nil
}

func (s *Scorer) predict(ctx context.Context, snap models.MetricsSnapshot) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Model.Timeout)
	defer cancel()

	p, err := s.predictor.PredictLoadRisk(ctx, snap)
	if err != nil {
		var mu *models.ModelUnavailableError
		if errors.As(err, &mu) {
			return 0, err
		}
		return 0, &models.ModelUnavailableError{Err: err}
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, &models.ModelUnavailableError{Err: fmt.Errorf("probability %v out of range", p)}
	}
	return p, nil
}

// loadRatio is patients per unit of staffed capacity, capped at 1.
func (s *Scorer) loadRatio(snap models.MetricsSnapshot) float64 {
	var capacity float64
	for _, role := range snap.Roles() {
		capacity += float64(snap.StaffAvailable[role]) * s.cfg.Coverage[string(role)]
	}
	if capacity <= 0 {
		if snap.PatientLoad > 0 {
			return 1
		}
		return 0
	}
	return clamp01(float64(snap.PatientLoad) / capacity)
}

// shortage is the missing fraction of baseline staff, over roles that have a baseline.
func (s *Scorer) shortage(snap models.MetricsSnapshot) float64 {
	var have, want int
	for role, base := range s.cfg.BaselineStaff {
		if base <= 0 {
			continue
		}
		want += base
		have += snap.StaffAvailable[models.Role(role)]
	}
	if want == 0 {
		return 0
	}
	return math.Max(0, 1-float64(have)/float64(want))
}

func factor(name string, weight, value float64) models.Factor {
	return models.Factor{Name: name, Weight: weight, Value: value, Contribution: weight * value}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
