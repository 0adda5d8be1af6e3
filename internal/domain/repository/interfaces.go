package repository

import (
	"context"
	"time"

	"StaffPulse/internal/domain/models"
)

// Ledger is the append-only decision store.
type Ledger interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, id string, rec models.DecisionRecord) error
	List(ctx context.Context, unitID string, from, to time.Time, limit int) ([]models.StoredDecision, error)
	Aggregate(ctx context.Context, unitID string, g models.Granularity, from, to time.Time) ([]models.DecisionAggregate, error)
	Close() error
}

// StateStore keeps one ClassifierState per unit.
// Load returns models.InitialState() for a unit that was never saved.
type StateStore interface {
	Load(ctx context.Context, unitID string) (models.ClassifierState, error)
	Save(ctx context.Context, unitID string, st models.ClassifierState) error
	// Lock serialises read-modify-write cycles of one unit. The returned func releases it.
	Lock(ctx context.Context, unitID string) (func(), error)
}

// DecisionPublisher fans decision records out to downstream consumers (dashboards, reporting).
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, id string, rec models.DecisionRecord) error
	Close() error
}

type Metrics interface {
	RecordCycle(unitID string, class models.Classification, risk float64, d time.Duration)
	RecordTransition(unitID string, from, to models.Classification)
	RecordAlert(unitID, outcome string)
	RecordModelFallback(unitID string)
	RecordAuditFailure(unitID string)
	RecordError(kind string)
}
