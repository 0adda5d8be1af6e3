package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"StaffPulse/internal/domain/models"
	"StaffPulse/internal/domain/repository"
)

// MemoryLedger is an append-only in-process ledger for development and tests.
type MemoryLedger struct {
	mu      sync.RWMutex
	rows    []models.StoredDecision
	ids     map[string]struct{}
	maxRows int
}

// NewMemoryLedger holds at most maxRows decisions (0 = unbounded). A full ledger
// rejects appends with models.ErrLedgerFull; stored decisions are never removed.
func NewMemoryLedger(maxRows int) *MemoryLedger {
	return &MemoryLedger{ids: make(map[string]struct{}), maxRows: maxRows}
}

var _ repository.Ledger = (*MemoryLedger)(nil)

func (l *MemoryLedger) Init(context.Context) error { return nil }

func (l *MemoryLedger) Append(_ context.Context, id string, rec models.DecisionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.ids[id]; dup {
		return fmt.Errorf("%w: %s", models.ErrDuplicateRecord, id)
	}
	if l.maxRows > 0 && len(l.rows) >= l.maxRows {
		return fmt.Errorf("%w: %d decisions", models.ErrLedgerFull, l.maxRows)
	}
	l.rows = append(l.rows, models.StoredDecision{ID: id, Record: rec})
	l.ids[id] = struct{}{}
	return nil
}

func (l *MemoryLedger) List(_ context.Context, unitID string, from, to time.Time, limit int) ([]models.StoredDecision, error) {
	matched := l.scan(unitID, from, to)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Record.Snapshot.Timestamp.After(matched[j].Record.Snapshot.Timestamp)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (l *MemoryLedger) Aggregate(_ context.Context, unitID string, g models.Granularity, from, to time.Time) ([]models.DecisionAggregate, error) {
	if !g.IsValid() {
		return nil, models.NewValidationError("granularity", fmt.Sprintf("unsupported %q", g))
	}

	byBucket := make(map[time.Time]*models.DecisionAggregate)
	for _, row := range l.scan(unitID, from, to) {
		rec := row.Record
		key := g.BucketStart(rec.Snapshot.Timestamp)
		a, ok := byBucket[key]
		if !ok {
			a = &models.DecisionAggregate{Bucket: key}
			byBucket[key] = a
		}
		a.Cycles++
		a.AvgRisk += rec.RiskScore.Value // sum until the final pass
		if rec.RiskScore.Value > a.MaxRisk {
			a.MaxRisk = rec.RiskScore.Value
		}
		switch rec.Classification {
		case models.Normal:
			a.NormalCycles++
		case models.Proactive:
			a.ProactiveCycles++
		case models.Emergency:
			a.EmergencyCycles++
		}
		if rec.Alert.Fired() {
			a.AlertsFired++
		}
	}

	out := make([]models.DecisionAggregate, 0, len(byBucket))
	for _, a := range byBucket {
		a.AvgRisk /= float64(a.Cycles)
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out, nil
}

// Len returns the number of stored decisions.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rows)
}

func (l *MemoryLedger) Close() error { return nil }

// scan returns the unit's rows with from <= snapshot time < to.
func (l *MemoryLedger) scan(unitID string, from, to time.Time) []models.StoredDecision {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.StoredDecision
	for _, r := range l.rows {
		ts := r.Record.Snapshot.Timestamp
		if r.Record.UnitID != unitID || ts.Before(from) || !ts.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}
