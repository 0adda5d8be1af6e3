package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"StaffPulse/pkg/logger"
)

type delayed struct {
	msg   Message
	dueAt time.Time
}

// MemoryQueue is an in-process Service. Pending messages are lost on restart.
type MemoryQueue struct {
	*registry

	ready chan Message

	mu      sync.Mutex
	running bool
	retries []delayed
	dead    []Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewMemoryQueue(log *logger.Logger, cfg Config) *MemoryQueue {
	reg := newRegistry(log, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		registry: reg,
		ready:    make(chan Message, reg.cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

var _ Service = (*MemoryQueue)(nil)

func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}
	if q.ctx.Err() != nil {
		return ErrNotRunning
	}
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.wg.Add(1)
	go q.retryProcessor()
	q.log.Info("memory queue started", logger.Int("workers", q.cfg.Workers))
	return nil
}

func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	}

	if lost := len(q.ready) + q.pendingRetries(); lost > 0 {
		q.log.Warn("memory queue stopped with pending messages", logger.Int("pending", lost))
	}
	return nil
}

func (q *MemoryQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	if !q.has(msgType) {
		return fmt.Errorf("%w for type: %s", ErrNoJob, msgType)
	}
	msg, err := newMessage(msgType, payload)
	if err != nil {
		return err
	}
	select {
	case q.ready <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// DeadLetters returns a copy of the messages that exhausted their retries.
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.dead...)
}

func (q *MemoryQueue) pendingRetries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.retries)
}

func (q *MemoryQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.ready:
			switch q.run(q.ctx, &msg) {
			case outcomeRetry:
				q.mu.Lock()
				q.retries = append(q.retries, delayed{msg: msg, dueAt: q.now().Add(q.cfg.RetryDelay)})
				q.mu.Unlock()
			case outcomeDead:
				q.mu.Lock()
				q.dead = append(q.dead, msg)
				q.mu.Unlock()
			}
		}
	}
}

func (q *MemoryQueue) retryProcessor() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.promoteDue()
		}
	}
}

func (q *MemoryQueue) promoteDue() {
	now := q.now()
	q.mu.Lock()
	var due []Message
	kept := q.retries[:0]
	for _, d := range q.retries {
		if d.dueAt.After(now) {
			kept = append(kept, d)
			continue
		}
		due = append(due, d.msg)
	}
	q.retries = kept
	q.mu.Unlock()

	for i, msg := range due {
		select {
		case q.ready <- msg:
		default:
			// Full; try the rest on the next tick.
			q.mu.Lock()
			for _, m := range due[i:] {
				q.retries = append(q.retries, delayed{msg: m, dueAt: now})
			}
			q.mu.Unlock()
			return
		}
	}
}
