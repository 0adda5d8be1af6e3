package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"StaffPulse/internal/domain/models"
	domrepo "StaffPulse/internal/domain/repository"
	"StaffPulse/pkg/logger"
	"StaffPulse/pkg/queue"
)

// AuditAppendJob is the queue message type for a decision whose first append failed.
const AuditAppendJob = "audit.append"

type pendingAppend struct {
	ID     string                `json:"id"`
	Record models.DecisionRecord `json:"record"`
}

// AuditRecorder assigns record ids and appends decisions to the ledger.
type AuditRecorder struct {
	ledger domrepo.Ledger
	retry  queue.Service
	log    *logger.Logger
	newID  func() string
}

type AuditOption func(*AuditRecorder)

// WithRetryQueue re-appends failed decisions in the background. The recorder
// registers itself as the queue's AuditAppendJob handler.
func WithRetryQueue(q queue.Service) AuditOption {
	return func(a *AuditRecorder) { a.retry = q }
}

func WithAuditLogger(l *logger.Logger) AuditOption {
	return func(a *AuditRecorder) { a.log = l }
}

func NewAuditRecorder(ledger domrepo.Ledger, opts ...AuditOption) *AuditRecorder {
	a := &AuditRecorder{ledger: ledger, newID: uuid.NewString}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Nop()
	}
	if a.retry != nil {
		a.retry.Register(a)
	}
	return a
}

// Record appends rec and returns its id. Any ledger failure is returned as a
// *models.StorageError. When the decision was handed to the retry queue the id
// is still returned alongside the error; otherwise it is empty.
func (a *AuditRecorder) Record(ctx context.Context, rec models.DecisionRecord) (string, error) {
	id := a.newID()
	err := a.ledger.Append(ctx, id, rec)
	if err == nil {
		return id, nil
	}
	err = storageErr("append decision", err)
	if a.retry == nil {
		return "", err
	}
	if qerr := a.retry.Enqueue(ctx, AuditAppendJob, pendingAppend{ID: id, Record: rec}); qerr != nil {
		a.log.Error("audit retry enqueue failed",
			logger.String("unit", rec.UnitID),
			logger.String("id", id),
			logger.Error(qerr))
		return "", err
	}
	return id, err
}

func (a *AuditRecorder) Type() string { return AuditAppendJob }

// Handle re-appends a queued decision under its original id. A duplicate means
// an earlier attempt landed after all.
func (a *AuditRecorder) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.Decode[pendingAppend](payload)
	if err != nil {
		return err
	}
	if err := a.ledger.Append(ctx, p.ID, p.Record); err != nil && !errors.Is(err, models.ErrDuplicateRecord) {
		return err
	}
	a.log.Info("queued decision audited", logger.String("unit", p.Record.UnitID), logger.String("id", p.ID))
	return nil
}
