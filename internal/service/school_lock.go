package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type distributedLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (*cache.Lease, error)
}

// SchoolLock serialises regenerations and moves of one school. An in-process
// semaphore orders callers of this instance; a Redis lease excludes other instances.
type SchoolLock struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	remote  distributedLocker
	ttl     time.Duration
	wait    time.Duration
	metrics *MetricsService
	logger  *zap.Logger
}

// NewSchoolLock builds the lock. remote may be nil for single instance deployments.
func NewSchoolLock(remote distributedLocker, ttl, wait time.Duration, metrics *MetricsService, logger *zap.Logger) *SchoolLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchoolLock{
		slots:   make(map[string]chan struct{}),
		remote:  remote,
		ttl:     ttl,
		wait:    wait,
		metrics: metrics,
		logger:  logger,
	}
}

func (l *SchoolLock) slot(schoolID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[schoolID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[schoolID] = ch
	}
	return ch
}

// Acquire blocks until the school is free locally (bounded by wait when positive)
// and then takes the remote lease once. The returned func releases both.
func (l *SchoolLock) Acquire(ctx context.Context, schoolID string) (func(), error) {
	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	ch := l.slot(schoolID)
	select {
	case ch <- struct{}{}:
	case <-waitCtx.Done():
		l.metrics.RecordSchoolLock("busy")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, appErrors.Clone(appErrors.ErrLocked, "timetable of this school is being modified")
	}

	var lease *cache.Lease
	if l.remote != nil {
		var err error
		lease, err = l.remote.Acquire(ctx, "school:"+schoolID, l.ttl)
		if err != nil {
			<-ch
			if errors.Is(err, cache.ErrLockHeld) {
				l.metrics.RecordSchoolLock("busy")
				return nil, appErrors.Wrap(err, appErrors.ErrLocked.Code, appErrors.ErrLocked.Status, "timetable of this school is being modified by another instance")
			}
			l.metrics.RecordSchoolLock("error")
			return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to acquire school lock")
		}
	}
	l.metrics.RecordSchoolLock("acquired")

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lease.Release(releaseCtx); err != nil {
				l.logger.Warn("release school lease", zap.String("school_id", schoolID), zap.Error(err))
			}
			<-ch
		})
	}, nil
}
