package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"StaffPulse/internal/domain/models"
	domrepo "StaffPulse/internal/domain/repository"
	pkgkafka "StaffPulse/pkg/kafka"
	"StaffPulse/pkg/logger"
)

// SnapshotHandler runs one decision cycle per snapshot consumed from Kafka.
type SnapshotHandler struct {
	topic   string
	cycle   *DecisionCycle
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewSnapshotHandler(topic string, cycle *DecisionCycle, metrics domrepo.Metrics, log *logger.Logger) *SnapshotHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SnapshotHandler{topic: topic, cycle: cycle, metrics: metrics, log: log}
}

func (h *SnapshotHandler) Topic() string { return h.topic }

// Handle decodes a JSON snapshot and evaluates it. Malformed or invalid snapshots are
// permanent failures and go straight to the DLQ; storage failures are retried. A
// redelivered or out-of-order snapshot is skipped and committed.
func (h *SnapshotHandler) Handle(ctx context.Context, b []byte) error {
	var snap models.MetricsSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode snapshot: %w", err))
	}

	res, err := h.cycle.EvaluateNewer(ctx, snap)
	if err != nil {
		if errors.Is(err, models.ErrStaleSnapshot) {
			h.log.Debug("stale snapshot skipped", logger.String("unit", snap.UnitID), logger.Error(err))
			return nil
		}
		if errors.Is(err, models.ErrValidation) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	h.log.Debug("snapshot evaluated",
		logger.String("unit", snap.UnitID),
		logger.String("classification", res.Record.Classification.String()),
		logger.Bool("unaudited", res.Unaudited))
	return nil
}

var _ pkgkafka.MessageHandler = (*SnapshotHandler)(nil)
