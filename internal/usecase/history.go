package usecase

import (
	"context"
	"time"

	"StaffPulse/internal/domain/models"
	domrepo "StaffPulse/internal/domain/repository"
)

// HistoryService exposes read-only projections of the decision ledger.
type HistoryService struct {
	ledger  domrepo.Ledger
	timeout time.Duration
}

func NewHistoryService(ledger domrepo.Ledger) *HistoryService {
	return &HistoryService{ledger: ledger, timeout: 10 * time.Second}
}

func (h *HistoryService) List(ctx context.Context, unitID string, from, to time.Time, limit int) ([]models.StoredDecision, error) {
	if err := checkRange(unitID, from, to); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	out, err := h.ledger.List(ctx, unitID, from, to, limit)
	if err != nil {
		return nil, storageErr("list decisions", err)
	}
	return out, nil
}

func (h *HistoryService) Aggregate(ctx context.Context, unitID string, g models.Granularity, from, to time.Time) ([]models.DecisionAggregate, error) {
	if err := checkRange(unitID, from, to); err != nil {
		return nil, err
	}
	if !g.IsValid() {
		return nil, models.NewValidationError("granularity", "must be one of day, week, month, year")
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	out, err := h.ledger.Aggregate(ctx, unitID, g, from, to)
	if err != nil {
		return nil, storageErr("aggregate decisions", err)
	}
	return out, nil
}

func checkRange(unitID string, from, to time.Time) error {
	if unitID == "" {
		return models.NewValidationError("unit", "is required")
	}
	if !from.Before(to) {
		return models.NewValidationError("from", "must be before to")
	}
	return nil
}
