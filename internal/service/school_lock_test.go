package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type remoteLockStub struct {
	err   error
	names []string
}

func (r *remoteLockStub) Acquire(_ context.Context, name string, _ time.Duration) (*cache.Lease, error) {
	r.names = append(r.names, name)
	if r.err != nil {
		return nil, r.err
	}
	return &cache.Lease{}, nil
}

func TestSchoolLockSerialisesSameSchool(t *testing.T) {
	remote := &remoteLockStub{}
	lock := NewSchoolLock(remote, time.Minute, 20*time.Millisecond, NewMetricsService(), nil)

	release, err := lock.Acquire(context.Background(), "school-1")
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background(), "school-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLocked.Code, appErrors.FromError(err).Code)

	other, err := lock.Acquire(context.Background(), "school-2")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := lock.Acquire(context.Background(), "school-1")
	require.NoError(t, err)
	again()
	assert.Equal(t, []string{"school:school-1", "school:school-2", "school:school-1"}, remote.names)
}

func TestSchoolLockWaitsForRelease(t *testing.T) {
	lock := NewSchoolLock(nil, time.Minute, 0, nil, nil)
	release, err := lock.Acquire(context.Background(), "school-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		next, err := lock.Acquire(context.Background(), "school-1")
		if err == nil {
			next()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second caller must wait for the first release")
	case <-time.After(20 * time.Millisecond):
	}
	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second caller did not acquire after release")
	}
}

func TestSchoolLockRemoteFailures(t *testing.T) {
	lock := NewSchoolLock(&remoteLockStub{err: cache.ErrLockHeld}, time.Minute, 0, nil, nil)
	_, err := lock.Acquire(context.Background(), "school-1")
	assert.Equal(t, appErrors.ErrLocked.Code, appErrors.FromError(err).Code)

	lock = NewSchoolLock(&remoteLockStub{err: errors.New("connection refused")}, time.Minute, 0, nil, nil)
	_, err = lock.Acquire(context.Background(), "school-1")
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)

	// the local slot is freed after a remote failure
	lock.remote = nil
	release, err := lock.Acquire(context.Background(), "school-1")
	require.NoError(t, err)
	release()
}

func TestSchoolLockHonoursCancelledContext(t *testing.T) {
	lock := NewSchoolLock(nil, time.Minute, 0, nil, nil)
	release, err := lock.Acquire(context.Background(), "school-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lock.Acquire(ctx, "school-1")
	assert.ErrorIs(t, err, context.Canceled)
}
