package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StaffPulse/internal/domain/models"
)

func newMockLedger(t *testing.T) (*ClickHouseLedger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewClickHouseLedger(db, "ledger"), mock
}

func TestClickHouseLedgerAppendInsertsNewID(t *testing.T) {
	l, mock := newMockLedger(t)
	rec := decisionAt("icu-a", time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), models.Emergency, 0.8, nil)

	mock.ExpectQuery(`SELECT count\(\) FROM ledger WHERE id = \?`).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count()"}).AddRow(uint64(0)))
	mock.ExpectExec(`INSERT INTO ledger`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, l.Append(context.Background(), "rec-1", rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseLedgerAppendRejectsStoredID(t *testing.T) {
	l, mock := newMockLedger(t)
	rec := decisionAt("icu-a", time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), models.Emergency, 0.8, nil)

	mock.ExpectQuery(`SELECT count\(\) FROM ledger WHERE id = \?`).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count()"}).AddRow(uint64(1)))

	err := l.Append(context.Background(), "rec-1", rec)
	assert.ErrorIs(t, err, models.ErrDuplicateRecord)
	// no INSERT was expected, so an extra statement would fail here
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseLedgerAppendSurfacesLookupError(t *testing.T) {
	l, mock := newMockLedger(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery(`SELECT count\(\) FROM ledger WHERE id = \?`).
		WithArgs("rec-1").
		WillReturnError(boom)

	err := l.Append(context.Background(), "rec-1", decisionAt("icu-a", time.Now(), models.Normal, 0.1, nil))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, models.ErrDuplicateRecord)
	assert.NoError(t, mock.ExpectationsWereMet())
}
