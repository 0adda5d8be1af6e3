package service

import (
	"context"

	"StaffPulse/internal/domain/models"
)

// LoadRiskPredictor returns the probability, in [0,1], that the unit is about to be overloaded.
type LoadRiskPredictor interface {
	PredictLoadRisk(ctx context.Context, snapshot models.MetricsSnapshot) (float64, error)
}

// Notifier delivers an alert to on-call recipients over whatever transports are configured.
type Notifier interface {
	Notify(ctx context.Context, severity models.Severity, reason string, recipients []string) error
}
