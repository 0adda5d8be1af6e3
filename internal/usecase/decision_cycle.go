package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StaffPulse/internal/domain/models"
	domrepo "StaffPulse/internal/domain/repository"
	"StaffPulse/internal/engine"
	"StaffPulse/pkg/logger"
)

// CycleResult is what one evaluation returns to its trigger.
type CycleResult struct {
	RecordID   string
	Record     models.DecisionRecord
	Unaudited  bool
	AuditError error

	// AuditQueued is set when an unaudited record waits in the retry queue under RecordID.
	AuditQueued bool
}

// DecisionCycle runs snapshot -> score -> classify -> recommend -> alert -> audit for one unit.
type DecisionCycle struct {
	scorer     *engine.Scorer
	classifier *engine.Classifier
	advisor    *engine.Advisor
	dispatcher *engine.Dispatcher
	states     domrepo.StateStore
	audit      *AuditRecorder
	publisher  domrepo.DecisionPublisher
	metrics    domrepo.Metrics
	log        *logger.Logger
	version    string
	now        func() time.Time
}

type DecisionCycleOption func(*DecisionCycle)

// WithPublisher fans every decision out after it has been audited.
func WithPublisher(p domrepo.DecisionPublisher) DecisionCycleOption {
	return func(uc *DecisionCycle) { uc.publisher = p }
}

func WithClock(now func() time.Time) DecisionCycleOption {
	return func(uc *DecisionCycle) { uc.now = now }
}

func NewDecisionCycle(
	scorer *engine.Scorer,
	classifier *engine.Classifier,
	advisor *engine.Advisor,
	dispatcher *engine.Dispatcher,
	states domrepo.StateStore,
	audit *AuditRecorder,
	metrics domrepo.Metrics,
	log *logger.Logger,
	version string,
	opts ...DecisionCycleOption,
) *DecisionCycle {
	uc := &DecisionCycle{
		scorer:     scorer,
		classifier: classifier,
		advisor:    advisor,
		dispatcher: dispatcher,
		states:     states,
		audit:      audit,
		metrics:    metrics,
		log:        log,
		version:    version,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	if uc.log == nil {
		uc.log = logger.Nop()
	}
	return uc
}

// Evaluate runs one decision cycle. Failures before the classifier state is saved
// (validation, state load or save) return an error and leave no trace. After that point
// the cycle always completes; an audit failure is reported on the result instead.
func (uc *DecisionCycle) Evaluate(ctx context.Context, snap models.MetricsSnapshot) (*CycleResult, error) {
	return uc.evaluate(ctx, snap, false)
}

// EvaluateNewer is Evaluate for at-least-once delivery: a snapshot whose timestamp is not
// after the last one applied to the unit is rejected with models.ErrStaleSnapshot before
// any state, alert or ledger side effect.
func (uc *DecisionCycle) EvaluateNewer(ctx context.Context, snap models.MetricsSnapshot) (*CycleResult, error) {
	return uc.evaluate(ctx, snap, true)
}

func (uc *DecisionCycle) evaluate(ctx context.Context, snap models.MetricsSnapshot, requireNewer bool) (*CycleResult, error) {
	start := uc.now()
	if err := snap.Validate(); err != nil {
		uc.metrics.RecordError("validation")
		return nil, err
	}
	unit := snap.UnitID

	unlock, err := uc.states.Lock(ctx, unit)
	if err != nil {
		uc.metrics.RecordError("state_lock")
		return nil, storageErr("lock unit state", err)
	}
	defer unlock()

	prev, err := uc.states.Load(ctx, unit)
	if err != nil {
		uc.metrics.RecordError("state_load")
		return nil, storageErr("load unit state", err)
	}
	if requireNewer && !prev.LastEvaluated.IsZero() && !snap.Timestamp.After(prev.LastEvaluated) {
		uc.metrics.RecordError("stale_snapshot")
		return nil, fmt.Errorf("%w: unit %s at %s, last evaluated %s", models.ErrStaleSnapshot,
			unit, snap.Timestamp.UTC().Format(time.RFC3339), prev.LastEvaluated.UTC().Format(time.RFC3339))
	}

	score, err := uc.scorer.Score(ctx, snap)
	if err != nil {
		uc.metrics.RecordError("validation")
		return nil, err
	}
	if score.ModelError != "" {
		uc.metrics.RecordModelFallback(unit)
	}

	decision := uc.classifier.ClassifyWithReason(score.Value, prev, snap.Timestamp)
	recommendation := uc.advisor.Recommend(decision.Class, snap)
	decision.State.LastEvaluated = snap.Timestamp

	if err := uc.states.Save(ctx, unit, decision.State); err != nil {
		uc.metrics.RecordError("state_save")
		return nil, storageErr("save unit state", err)
	}

	alert := uc.dispatcher.Dispatch(ctx, unit, prev.Current, decision.Class, score, snap.Timestamp)

	record := models.DecisionRecord{
		UnitID:                 unit,
		Snapshot:               snap,
		RiskScore:              score,
		PreviousClassification: prev.Current,
		Classification:         decision.Class,
		Reason:                 decision.Reason,
		State:                  decision.State,
		Recommendation:         recommendation,
		Alert:                  alert,
		EngineVersion:          uc.version,
		EvaluatedAt:            uc.now(),
	}
	res := &CycleResult{Record: record}

	id, err := uc.audit.Record(ctx, record)
	res.RecordID = id
	if err != nil {
		res.Unaudited = true
		res.AuditError = err
		res.AuditQueued = id != ""
		uc.metrics.RecordAuditFailure(unit)
		uc.log.Warn("decision not audited",
			logger.String("unit", unit),
			logger.String("classification", decision.Class.String()),
			logger.Bool("retry_queued", res.AuditQueued),
			logger.Error(err))
	}

	// without a record id consumers could not correlate the decision with the ledger
	if uc.publisher != nil && id != "" {
		if err := uc.publisher.PublishDecision(ctx, id, record); err != nil {
			uc.metrics.RecordError("publish_decision")
			uc.log.Debug("decision publish failed", logger.String("unit", unit), logger.Error(err))
		}
	}

	uc.observe(record, alert, uc.now().Sub(start))
	return res, nil
}

// State returns the current classifier state of a unit.
func (uc *DecisionCycle) State(ctx context.Context, unitID string) (models.ClassifierState, error) {
	if unitID == "" {
		return models.ClassifierState{}, models.NewValidationError("unit", "is required")
	}
	st, err := uc.states.Load(ctx, unitID)
	if err != nil {
		return models.ClassifierState{}, storageErr("load unit state", err)
	}
	return st, nil
}

func (uc *DecisionCycle) observe(rec models.DecisionRecord, alert *models.AlertEvent, d time.Duration) {
	uc.metrics.RecordCycle(rec.UnitID, rec.Classification, rec.RiskScore.Value, d)
	if rec.Transitioned() {
		uc.metrics.RecordTransition(rec.UnitID, rec.PreviousClassification, rec.Classification)
		uc.log.Info("classification changed",
			logger.String("unit", rec.UnitID),
			logger.String("from", rec.PreviousClassification.String()),
			logger.String("to", rec.Classification.String()),
			logger.Float64("risk", rec.RiskScore.Value),
			logger.String("reason", rec.Reason))
	}
	if alert != nil {
		outcome := "sent"
		switch {
		case alert.Suppressed:
			outcome = "suppressed"
		case alert.DeliveryFailed:
			outcome = "failed"
		}
		uc.metrics.RecordAlert(rec.UnitID, outcome)
	}
}

func storageErr(op string, err error) error {
	if errors.Is(err, models.ErrStorage) {
		return err
	}
	return &models.StorageError{Op: op, Err: err}
}
