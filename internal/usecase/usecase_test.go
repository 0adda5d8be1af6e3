package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StaffPulse/internal/domain/models"
	domrepo "StaffPulse/internal/domain/repository"
	"StaffPulse/internal/engine"
	"StaffPulse/internal/repository"
	"StaffPulse/pkg/cache"
	"StaffPulse/pkg/config"
	pkgkafka "StaffPulse/pkg/kafka"
)

var t0 = time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (n *countingNotifier) Notify(context.Context, models.Severity, string, []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type failingLedger struct{ domrepo.Ledger }

func (failingLedger) Append(context.Context, string, models.DecisionRecord) error {
	return errors.New("clickhouse: connection refused")
}

// saveFailingStates wraps a StateStore and rejects every Save.
type saveFailingStates struct{ domrepo.StateStore }

func (saveFailingStates) Save(context.Context, string, models.ClassifierState) error {
	return errors.New("redis: i/o timeout")
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPublisher) PublishDecision(_ context.Context, id string, _ models.DecisionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// memMetrics counts calls by "method/label".
type memMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *memMetrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[key]++
}

func (m *memMetrics) get(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *memMetrics) RecordCycle(_ string, class models.Classification, _ float64, _ time.Duration) {
	m.inc("cycle/" + class.String())
}
func (m *memMetrics) RecordTransition(_ string, from, to models.Classification) {
	m.inc("transition/" + from.String() + "->" + to.String())
}
func (m *memMetrics) RecordAlert(_, outcome string) { m.inc("alert/" + outcome) }
func (m *memMetrics) RecordModelFallback(string) { m.inc("fallback") }
func (m *memMetrics) RecordAuditFailure(string) { m.inc("audit_failure") }
func (m *memMetrics) RecordError(kind string) { m.inc("error/" + kind) }

type fixture struct {
	cycle    *DecisionCycle
	ledger   *repository.MemoryLedger
	states   domrepo.StateStore
	notifier *countingNotifier
	metrics  *memMetrics
}

func newFixture(t *testing.T, ledger domrepo.Ledger, wrap func(domrepo.StateStore) domrepo.StateStore, opts ...DecisionCycleOption) *fixture {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	var states domrepo.StateStore = repository.NewCacheStateStore(mc, time.Second, nil)
	if wrap != nil {
		states = wrap(states)
	}

	mem := repository.NewMemoryLedger(0)
	if ledger == nil {
		ledger = mem
	}
	n := &countingNotifier{}
	rec := &memMetrics{}

	cycle := NewDecisionCycle(
		engine.NewScorer(&cfg.Engine, nil, nil),
		engine.NewClassifier(&cfg.Engine),
		engine.NewAdvisor(&cfg.Engine),
		engine.NewDispatcher(&cfg.Alerting, n, nil),
		states,
		NewAuditRecorder(ledger),
		rec,
		nil,
		cfg.Engine.Version,
		append([]DecisionCycleOption{WithClock(func() time.Time { return t0 })}, opts...)...,
	)
	return &fixture{cycle: cycle, ledger: mem, states: states, notifier: n, metrics: rec}
}

func staff(ratio float64) map[models.Role]int {
	return map[models.Role]int{
		models.RoleDoctor:     int(math.Round(20 * ratio)),
		models.RoleNurse:      int(math.Round(60 * ratio)),
		models.RoleSister:     int(math.Round(10 * ratio)),
		models.RoleTechnician: int(math.Round(12 * ratio)),
	}
}

func calmSnapshot(at time.Time) models.MetricsSnapshot {
	return models.MetricsSnapshot{
		UnitID:             "icu-a",
		Timestamp:          at,
		PatientLoad:        50,
		ICUOccupancy:       0.3,
		EmergencyOccupancy: 0.2,
		StaffAvailable:     staff(1.0),
	}
}

func crisisSnapshot(at time.Time) models.MetricsSnapshot {
	return models.MetricsSnapshot{
		UnitID:             "icu-a",
		Timestamp:          at,
		PatientLoad:        400,
		ICUOccupancy:       0.9,
		EmergencyOccupancy: 0.85,
		StaffAvailable:     staff(0.6),
		ExternalRisk:       0.1,
	}
}

func TestEvaluateCalmCycle(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	res, err := f.cycle.Evaluate(ctx, calmSnapshot(t0))
	require.NoError(t, err)
	assert.NotEmpty(t, res.RecordID)
	assert.False(t, res.Unaudited)
	assert.Equal(t, models.Normal, res.Record.Classification)
	assert.Equal(t, models.Normal, res.Record.PreviousClassification)
	assert.Nil(t, res.Record.Alert)
	assert.Equal(t, "adequate staffing", res.Record.Recommendation.Rationale)
	assert.Equal(t, "1.0.0", res.Record.EngineVersion)
	assert.Equal(t, 1, f.ledger.Len())

	st, err := f.cycle.State(ctx, "icu-a")
	require.NoError(t, err)
	assert.Equal(t, models.Normal, st.Current)
	assert.Equal(t, 1, st.CyclesInState)
}

func TestEvaluateEscalationAlertsOnce(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, nil, nil, WithPublisher(pub))
	ctx := context.Background()

	first, err := f.cycle.Evaluate(ctx, crisisSnapshot(t0))
	require.NoError(t, err)
	require.Equal(t, models.Emergency, first.Record.Classification)
	require.NotNil(t, first.Record.Alert)
	assert.False(t, first.Record.Alert.Suppressed)
	assert.Equal(t, t0, first.Record.State.LastTransition)

	second, err := f.cycle.Evaluate(ctx, crisisSnapshot(t0.Add(time.Minute)))
	require.NoError(t, err)
	require.NotNil(t, second.Record.Alert)
	assert.True(t, second.Record.Alert.Suppressed)

	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, 2, f.ledger.Len())
	assert.Equal(t, []string{first.RecordID, second.RecordID}, pub.ids)
	assert.Equal(t, 1, f.metrics.get("alert/sent"))
	assert.Equal(t, 1, f.metrics.get("alert/suppressed"))
	assert.Equal(t, 1, f.metrics.get("transition/normal->emergency"))
	assert.Equal(t, 2, f.metrics.get("cycle/emergency"))
}

func TestEvaluateDwellHoldsEmergency(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.cycle.Evaluate(ctx, crisisSnapshot(t0))
	require.NoError(t, err)

	res, err := f.cycle.Evaluate(ctx, calmSnapshot(t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, models.Emergency, res.Record.Classification)
	assert.Contains(t, res.Record.Reason, "dwell")
}

func TestEvaluateAuditFailureStillReturnsDecision(t *testing.T) {
	f := newFixture(t, failingLedger{}, nil)

	res, err := f.cycle.Evaluate(context.Background(), crisisSnapshot(t0))
	require.NoError(t, err)
	assert.True(t, res.Unaudited)
	assert.Empty(t, res.RecordID)
	assert.ErrorIs(t, res.AuditError, models.ErrStorage)
	assert.Equal(t, models.Emergency, res.Record.Classification)
	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, 1, f.metrics.get("audit_failure"))

	st, err := f.cycle.State(context.Background(), "icu-a")
	require.NoError(t, err)
	assert.Equal(t, models.Emergency, st.Current)
}

func TestEvaluateAuditFailureSkipsPublish(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, failingLedger{}, nil, WithPublisher(pub))

	res, err := f.cycle.Evaluate(context.Background(), crisisSnapshot(t0))
	require.NoError(t, err)
	assert.True(t, res.Unaudited)
	assert.False(t, res.AuditQueued)
	assert.Empty(t, pub.ids)
}

func TestEvaluateFullLedgerMarksUnaudited(t *testing.T) {
	full := repository.NewMemoryLedger(1)
	f := newFixture(t, full, nil)
	ctx := context.Background()

	_, err := f.cycle.Evaluate(ctx, calmSnapshot(t0))
	require.NoError(t, err)

	res, err := f.cycle.Evaluate(ctx, calmSnapshot(t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, res.Unaudited)
	assert.ErrorIs(t, res.AuditError, models.ErrLedgerFull)
	assert.Equal(t, 1, full.Len())
}

func TestEvaluateReplayIsIdempotent(t *testing.T) {
	early := newFixture(t, nil, nil)
	late := newFixture(t, nil, nil, WithClock(func() time.Time { return t0.Add(time.Hour) }))
	ctx := context.Background()

	a, err := early.cycle.Evaluate(ctx, crisisSnapshot(t0))
	require.NoError(t, err)
	b, err := late.cycle.Evaluate(ctx, crisisSnapshot(t0))
	require.NoError(t, err)

	require.NotEqual(t, a.Record.EvaluatedAt, b.Record.EvaluatedAt)
	ra, rb := a.Record, b.Record
	ra.EvaluatedAt, rb.EvaluatedAt = time.Time{}, time.Time{}
	assert.Equal(t, ra, rb)
}

func TestEvaluateNewerSkipsReplayedSnapshot(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.cycle.EvaluateNewer(ctx, crisisSnapshot(t0.Add(time.Minute)))
	require.NoError(t, err)

	for _, at := range []time.Time{t0.Add(time.Minute), t0} {
		_, err = f.cycle.EvaluateNewer(ctx, crisisSnapshot(at))
		assert.ErrorIs(t, err, models.ErrStaleSnapshot)
	}
	assert.Equal(t, 1, f.ledger.Len())
	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, 2, f.metrics.get("error/stale_snapshot"))

	st, err := f.cycle.State(ctx, "icu-a")
	require.NoError(t, err)
	assert.Equal(t, 0, st.CyclesInState)
	assert.True(t, st.LastEvaluated.Equal(t0.Add(time.Minute)))

	_, err = f.cycle.EvaluateNewer(ctx, crisisSnapshot(t0.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, 2, f.ledger.Len())
}

func TestEvaluateStateSaveFailureHasNoEffect(t *testing.T) {
	f := newFixture(t, nil, func(s domrepo.StateStore) domrepo.StateStore { return saveFailingStates{s} })

	_, err := f.cycle.Evaluate(context.Background(), crisisSnapshot(t0))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.Equal(t, 0, f.notifier.count())
	assert.Equal(t, 0, f.ledger.Len())
}

func TestEvaluateRejectsInvalidSnapshot(t *testing.T) {
	f := newFixture(t, nil, nil)
	snap := calmSnapshot(t0)
	snap.ICUOccupancy = 1.4

	_, err := f.cycle.Evaluate(context.Background(), snap)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, 0, f.ledger.Len())
	assert.Equal(t, 1, f.metrics.get("error/validation"))

	st, err := f.cycle.State(context.Background(), "icu-a")
	require.NoError(t, err)
	assert.Equal(t, models.InitialState(), st)
}

func TestEvaluateConcurrentUnitsAreSerialised(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.cycle.Evaluate(ctx, calmSnapshot(t0.Add(time.Duration(i)*time.Second)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := f.cycle.State(ctx, "icu-a")
	require.NoError(t, err)
	assert.Equal(t, 10, st.CyclesInState)
}

func TestSnapshotHandlerClassifiesFailures(t *testing.T) {
	f := newFixture(t, nil, nil)
	h := NewSnapshotHandler("staffpulse.snapshots", f.cycle, f.metrics, nil)
	ctx := context.Background()

	err := h.Handle(ctx, []byte(`{not json`))
	assert.True(t, pkgkafka.IsPermanent(err))

	err = h.Handle(ctx, []byte(`{"unit_id":"","timestamp":"2025-03-14T08:00:00Z"}`))
	assert.True(t, pkgkafka.IsPermanent(err))

	ok := `{"unit_id":"icu-a","timestamp":"2025-03-14T08:00:00Z","patient_load":50,
		"icu_occupancy_ratio":0.3,"emergency_occupancy_ratio":0.2,
		"staff_available":{"doctor":20,"nurse":60,"sister":10,"technician":12},"external_risk_factor":0}`
	require.NoError(t, h.Handle(ctx, []byte(ok)))
	assert.Equal(t, 1, f.ledger.Len())
	assert.Equal(t, "staffpulse.snapshots", h.Topic())

	// redelivery is committed without a second cycle
	require.NoError(t, h.Handle(ctx, []byte(ok)))
	assert.Equal(t, 1, f.ledger.Len())
	st, err := f.cycle.State(ctx, "icu-a")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CyclesInState)
}

func TestHistoryServiceListAndAggregate(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.cycle.Evaluate(ctx, calmSnapshot(t0.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	h := NewHistoryService(f.ledger)

	rows, err := h.List(ctx, "icu-a", t0, t0.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].Record.Snapshot.Timestamp.After(rows[2].Record.Snapshot.Timestamp))

	aggs, err := h.Aggregate(ctx, "icu-a", models.GranularityDay, t0.Add(-time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, 3, aggs[0].NormalCycles)

	_, err = h.List(ctx, "icu-a", t0, t0, 10)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = h.Aggregate(ctx, "icu-a", "hourly", t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = h.List(ctx, "", t0, t0.Add(time.Hour), 10)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestHistoryServiceWrapsLedgerErrors(t *testing.T) {
	h := NewHistoryService(brokenReader{})
	_, err := h.List(context.Background(), "icu-a", t0, t0.Add(time.Hour), 10)
	assert.ErrorIs(t, err, models.ErrStorage)
}

type brokenReader struct{ domrepo.Ledger }

func (brokenReader) List(context.Context, string, time.Time, time.Time, int) ([]models.StoredDecision, error) {
	return nil, errors.New("table decision_records does not exist")
}
