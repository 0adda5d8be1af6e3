package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"StaffPulse/internal/domain/models"
	"StaffPulse/internal/domain/repository"
)

// ClickHouseLedger stores one row per decision: the full record as JSON plus the
// columns needed for range scans and aggregation.
type ClickHouseLedger struct {
	db    *sql.DB
	table string
}

func NewClickHouseLedger(db *sql.DB, table string) *ClickHouseLedger {
	return &ClickHouseLedger{db: db, table: table}
}

var _ repository.Ledger = (*ClickHouseLedger)(nil)

// Schema returns the DDL of the ledger table.
func (l *ClickHouseLedger) Schema() []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id String,
	unit_id LowCardinality(String),
	snapshot_ts DateTime64(3, 'UTC'),
	evaluated_at DateTime64(3, 'UTC'),
	risk Float64,
	prev_class LowCardinality(String),
	class LowCardinality(String),
	alert_fired UInt8,
	model_used UInt8,
	engine_version LowCardinality(String),
	payload String CODEC(ZSTD(3))
) ENGINE = MergeTree
PARTITION BY toYYYYMM(snapshot_ts)
ORDER BY (unit_id, snapshot_ts, id)`, l.table)}
}

func (l *ClickHouseLedger) Init(ctx context.Context) error {
	for _, stmt := range l.Schema() {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init ledger schema: %w", err)
		}
	}
	return nil
}

// Append inserts rec unless a row with the same id is already stored. MergeTree
// does not enforce uniqueness, so a redelivered audit retry is checked first.
func (l *ClickHouseLedger) Append(ctx context.Context, id string, rec models.DecisionRecord) error {
	exists, err := l.exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check decision %s: %w", id, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", models.ErrDuplicateRecord, id)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s
	(id, unit_id, snapshot_ts, evaluated_at, risk, prev_class, class, alert_fired, model_used, engine_version, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, l.table)
	_, err = l.db.ExecContext(ctx, q,
		id,
		rec.UnitID,
		rec.Snapshot.Timestamp.UTC(),
		rec.EvaluatedAt.UTC(),
		rec.RiskScore.Value,
		rec.PreviousClassification.String(),
		rec.Classification.String(),
		boolToUInt8(rec.Alert.Fired()),
		boolToUInt8(rec.RiskScore.ModelUsed),
		rec.EngineVersion,
		string(payload),
	)
	return err
}

func (l *ClickHouseLedger) exists(ctx context.Context, id string) (bool, error) {
	var n uint64
	q := fmt.Sprintf(`SELECT count() FROM %s WHERE id = ?`, l.table)
	if err := l.db.QueryRowContext(ctx, q, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *ClickHouseLedger) List(ctx context.Context, unitID string, from, to time.Time, limit int) ([]models.StoredDecision, error) {
	q := fmt.Sprintf(`SELECT id, payload FROM %s
	WHERE unit_id = ? AND snapshot_ts >= ? AND snapshot_ts < ?
	ORDER BY snapshot_ts DESC, id DESC
	LIMIT ?`, l.table)
	rows, err := l.db.QueryContext(ctx, q, unitID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StoredDecision
	for rows.Next() {
		var (
			d       models.StoredDecision
			payload string
		)
		if err := rows.Scan(&d.ID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &d.Record); err != nil {
			return nil, fmt.Errorf("decode decision %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (l *ClickHouseLedger) Aggregate(ctx context.Context, unitID string, g models.Granularity, from, to time.Time) ([]models.DecisionAggregate, error) {
	expr, err := bucketExpr(g)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s AS bucket,
	count() AS cycles,
	avg(risk) AS avg_risk,
	max(risk) AS max_risk,
	countIf(class = 'normal') AS normal_cycles,
	countIf(class = 'proactive') AS proactive_cycles,
	countIf(class = 'emergency') AS emergency_cycles,
	sum(alert_fired) AS alerts
	FROM %s
	WHERE unit_id = ? AND snapshot_ts >= ? AND snapshot_ts < ?
	GROUP BY bucket
	ORDER BY bucket`, expr, l.table)
	rows, err := l.db.QueryContext(ctx, q, unitID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DecisionAggregate
	for rows.Next() {
		var (
			a                                      models.DecisionAggregate
			cycles, normal, proactive, emerg, sent uint64
		)
		if err := rows.Scan(&a.Bucket, &cycles, &a.AvgRisk, &a.MaxRisk, &normal, &proactive, &emerg, &sent); err != nil {
			return nil, err
		}
		a.Bucket = a.Bucket.UTC()
		a.Cycles = int(cycles)
		a.NormalCycles = int(normal)
		a.ProactiveCycles = int(proactive)
		a.EmergencyCycles = int(emerg)
		a.AlertsFired = int(sent)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close is a no-op: the connection pool belongs to pkg/clickhouse.
func (l *ClickHouseLedger) Close() error { return nil }

func bucketExpr(g models.Granularity) (string, error) {
	switch g {
	case models.GranularityDay:
		return "toDate(snapshot_ts, 'UTC')", nil
	case models.GranularityWeek:
		return "toMonday(snapshot_ts, 'UTC')", nil
	case models.GranularityMonth:
		return "toStartOfMonth(snapshot_ts, 'UTC')", nil
	case models.GranularityYear:
		return "toStartOfYear(snapshot_ts, 'UTC')", nil
	default:
		return "", models.NewValidationError("granularity", fmt.Sprintf("unsupported %q", g))
	}
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
