package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StaffPulse/internal/domain/models"
	"StaffPulse/internal/domain/service"
	"StaffPulse/pkg/config"
	"StaffPulse/pkg/logger"
)

// Dispatcher fires one notification per escalation into Emergency and suppresses
// repeats while the unit stays there.
type Dispatcher struct {
	notifier   service.Notifier
	recipients []string
	timeout    time.Duration
	log        *logger.Logger
}

func NewDispatcher(cfg *config.AlertingConfig, notifier service.Notifier, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		notifier:   notifier,
		recipients: append([]string(nil), cfg.Recipients...),
		timeout:    cfg.Timeout,
		log:        log,
	}
}

// Dispatch returns the alert outcome of a transition, or nil when no alert applies.
// It never fails: delivery errors are recorded on the event.
func (d *Dispatcher) Dispatch(ctx context.Context, unitID string, prev, next models.Classification, score models.RiskScore, at time.Time) *models.AlertEvent {
	if next != models.Emergency {
		return nil
	}

	ev := &models.AlertEvent{
		Severity:   models.SeverityCritical,
		Timestamp:  at,
		Recipients: append([]string(nil), d.recipients...),
	}
	if prev == models.Emergency {
		ev.Suppressed = true
		ev.Reason = fmt.Sprintf("unit %s still in emergency (risk %.3f), alert suppressed", unitID, score.Value)
		return ev
	}

	ev.Reason = fmt.Sprintf("unit %s escalated from %s to emergency (risk %.3f)", unitID, prev, score.Value)
	if err := d.notify(ctx, ev); err != nil {
		ev.DeliveryFailed = true
		ev.Error = err.Error()
		d.log.Warn("emergency alert delivery failed",
			logger.String("unit", unitID), logger.Error(err))
		return ev
	}
	d.log.Info("emergency alert sent",
		logger.String("unit", unitID), logger.Strings("recipients", ev.Recipients))
	return ev
}

func (d *Dispatcher) notify(ctx context.Context, ev *models.AlertEvent) error {
	if d.notifier == nil {
		return &models.NotificationError{Err: errors.New("no notifier configured")}
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	severity, reason, recipients := ev.Severity, ev.Reason, ev.Recipients
	done := make(chan error, 1)
	go func() {
		done <- d.notifier.Notify(ctx, severity, reason, recipients)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrNotification) {
		return err
	}
	return &models.NotificationError{Err: err}
}
