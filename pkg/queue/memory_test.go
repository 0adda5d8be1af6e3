package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type payload struct {
	N int `json:"n"`
}

type flakyJob struct {
	failures int32
	calls    atomic.Int32
	seen     atomic.Int32
}

func (j *flakyJob) Type() string { return "flaky" }

func (j *flakyJob) Handle(_ context.Context, raw json.RawMessage) error {
	p, err := Decode[payload](raw)
	if err != nil {
		return err
	}
	n := j.calls.Add(1)
	if n <= j.failures {
		return errors.New("ledger down")
	}
	j.seen.Store(int32(p.N))
	return nil
}

func testConfig() Config {
	return Config{Workers: 2, RetryLimit: 2, RetryDelay: 5 * time.Millisecond, PollInterval: 2 * time.Millisecond}
}

func TestMemoryQueueRetriesUntilSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)
	q := NewMemoryQueue(nil, testConfig())
	job := &flakyJob{failures: 2}
	q.Register(job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "flaky", payload{N: 7}))

	require.Eventually(t, func() bool { return job.seen.Load() == 7 }, time.Second, 2*time.Millisecond)
	assert.EqualValues(t, 3, job.calls.Load())
	assert.Empty(t, q.DeadLetters())
}

func TestMemoryQueueDeadLettersAfterRetryLimit(t *testing.T) {
	defer goleak.VerifyNone(t)
	q := NewMemoryQueue(nil, testConfig())
	job := &flakyJob{failures: 100}
	q.Register(job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "flaky", payload{N: 1}))

	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, time.Second, 2*time.Millisecond)
	dead := q.DeadLetters()[0]
	assert.Equal(t, 3, dead.Attempts)
	assert.Equal(t, "ledger down", dead.LastError)
	assert.EqualValues(t, 3, job.calls.Load())
}

func TestMemoryQueueEnqueueErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	q := NewMemoryQueue(nil, Config{QueueSize: 1})
	job := &flakyJob{}
	q.Register(job)

	assert.ErrorIs(t, q.Enqueue(context.Background(), "flaky", payload{}), ErrNotRunning)

	require.NoError(t, q.Start())
	assert.ErrorIs(t, q.Enqueue(context.Background(), "unknown", payload{}), ErrNoJob)
	assert.Error(t, q.Enqueue(context.Background(), "flaky", func() {}))

	require.NoError(t, q.Stop(context.Background()))
	assert.ErrorIs(t, q.Enqueue(context.Background(), "flaky", payload{}), ErrNotRunning)
	assert.ErrorIs(t, q.Start(), ErrNotRunning)
}

func TestDecode(t *testing.T) {
	p, err := Decode[payload](json.RawMessage(`{"n":3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, p.N)

	_, err = Decode[payload](json.RawMessage(`{`))
	assert.Error(t, err)
}
