package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"StaffPulse/pkg/logger"
)

var (
	ErrNotRunning = errors.New("queue not running")
	ErrNoJob      = errors.New("no job registered")
	ErrQueueFull  = errors.New("queue full")
)

// Service is a background job queue with delayed retries and a dead-letter list.
type Service interface {
	Register(job Job)
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
	Start() error
	Stop(ctx context.Context) error
}

// Config contains the configuration for the queue.
type Config struct {
	Workers      int           // number of workers
	QueueSize    int           // buffered messages (memory queue only)
	RetryLimit   int           // retries after the first attempt
	RetryDelay   time.Duration // delay before a failed message is retried
	PollInterval time.Duration // how often due retries are promoted
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
}

// Message is the stored form of an enqueued job.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

func newMessage(msgType string, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals a job payload into T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
)

// registry holds jobs and decides what happens to a message after an attempt.
// Both queue backends share it.
type registry struct {
	log  *logger.Logger
	cfg  Config
	mu   sync.RWMutex
	jobs map[string]Job
}

func newRegistry(log *logger.Logger, cfg Config) *registry {
	if log == nil {
		log = logger.Nop()
	}
	cfg.setDefaults()
	return &registry{log: log, cfg: cfg, jobs: make(map[string]Job)}
}

func (r *registry) Register(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.log.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
	r.log.Info("job registered", logger.String("type", job.Type()))
}

func (r *registry) has(msgType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[msgType]
	return ok
}

// run attempts msg once and updates its attempt count and last error.
func (r *registry) run(ctx context.Context, msg *Message) outcome {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		msg.LastError = ErrNoJob.Error()
		return outcomeDead
	}

	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		if msg.Attempts > 0 {
			r.log.Info("message processed after retry",
				logger.String("id", msg.ID),
				logger.String("type", msg.Type),
				logger.Int("attempts", msg.Attempts+1))
		}
		return outcomeDone
	}

	// Shutdown interrupted the attempt; it does not count.
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		r.log.Warn("message cancelled",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Duration("elapsed", time.Since(start)))
		msg.LastError = err.Error()
		return outcomeRetry
	}

	msg.Attempts++
	msg.LastError = err.Error()
	if msg.Attempts > r.cfg.RetryLimit {
		r.log.Error("max retries reached",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		return outcomeDead
	}
	r.log.Warn("message processing error",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts),
		logger.Duration("retry_in", r.cfg.RetryDelay),
		logger.Error(err))
	return outcomeRetry
}
