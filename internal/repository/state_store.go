package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"StaffPulse/internal/domain/models"
	"StaffPulse/internal/domain/repository"
	"StaffPulse/pkg/cache"
	"StaffPulse/pkg/logger"
)

const lockRetryInterval = 20 * time.Millisecond

// CacheStateStore keeps classifier state in a cache.Service. Against Redis the
// per-unit lease also serialises cycles across engine replicas.
type CacheStateStore struct {
	cache    cache.Service
	leaseTTL time.Duration
	log      *logger.Logger

	mu    sync.Mutex
	local map[string]chan struct{}
}

func NewCacheStateStore(c cache.Service, leaseTTL time.Duration, log *logger.Logger) *CacheStateStore {
	if leaseTTL <= 0 {
		leaseTTL = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CacheStateStore{
		cache:    c,
		leaseTTL: leaseTTL,
		log:      log,
		local:    make(map[string]chan struct{}),
	}
}

var _ repository.StateStore = (*CacheStateStore)(nil)

func stateKey(unitID string) string { return "state:" + unitID }
func lockKey(unitID string) string  { return "lock:" + unitID }

func (s *CacheStateStore) Load(ctx context.Context, unitID string) (models.ClassifierState, error) {
	var st models.ClassifierState
	err := s.cache.Get(ctx, stateKey(unitID), &st)
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.InitialState(), nil
	}
	if err != nil {
		return models.ClassifierState{}, fmt.Errorf("load state %s: %w", unitID, err)
	}
	return st, nil
}

// Save persists state without expiry.
func (s *CacheStateStore) Save(ctx context.Context, unitID string, st models.ClassifierState) error {
	if err := s.cache.Set(ctx, stateKey(unitID), st, 0); err != nil {
		return fmt.Errorf("save state %s: %w", unitID, err)
	}
	return nil
}

// Lock takes the in-process slot for the unit, then the shared lease. Both are
// retried until ctx is done.
func (s *CacheStateStore) Lock(ctx context.Context, unitID string) (func(), error) {
	slot := s.slot(unitID)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	owner := uuid.NewString()
	key := lockKey(unitID)
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := s.cache.TryLock(ctx, key, owner, s.leaseTTL)
		if err != nil {
			<-slot
			return nil, fmt.Errorf("lock %s: %w", unitID, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			<-slot
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The lease may have expired under a slow cycle; another replica owns it then.
			rctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Unlock(rctx, key, owner); err != nil {
				s.log.Warn("state lease release failed",
					logger.String("unit_id", unitID),
					logger.Error(err),
				)
			}
			<-slot
		})
	}, nil
}

func (s *CacheStateStore) slot(unitID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.local[unitID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.local[unitID] = ch
	}
	return ch
}
