package service

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newTimetableServiceFixture(t *testing.T, store *memoryStore, lock schoolLocker) (*TimetableService, sqlmock.Sqlmock) {
	tx, mock := newSQLMockTx(t)
	if lock == nil {
		lock = NewSchoolLock(nil, time.Minute, 0, nil, nil)
	}
	svc := NewTimetableService(
		store.repositories(),
		tx,
		scheduler.NewEngine(scheduler.DefaultWeights, nil),
		lock,
		nil,
		NewMetricsService(),
		nil,
		nil,
		TimetableConfig{DefaultAttempts: 1, MaxAttempts: 5},
	)
	return svc, mock
}

func seed(v int64) *int64 { return &v }

func TestTimetableServiceGenerateExampleScenario(t *testing.T) {
	store := newMemoryStore()
	store.addSubject("math", "Math", true, "")
	store.addWorkload("w1", "c1", "math", "t1", 5)
	svc, mock := newTimetableServiceFixture(t, store, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Generate(context.Background(), "school-1", dto.GenerateTimetableRequest{Seed: seed(7)})
	require.NoError(t, err)
	assert.Equal(t, models.TimetableRunStatusComplete, resp.Status)
	assert.Equal(t, 1, resp.Version)
	assert.Equal(t, int64(7), resp.Seed)
	assert.Equal(t, 5, resp.Entries)
	assert.Equal(t, 5, resp.PlacedPeriods)
	assert.Zero(t, resp.UnplacedPeriods)
	assert.Empty(t, resp.Unplaced)

	doubles := lo.Filter(store.schedules, func(r models.ScheduleDetail, _ int) bool { return r.IsDouble })
	require.Len(t, doubles, 2)
	assert.Equal(t, doubles[0].PlacementID, doubles[1].PlacementID)
	assert.Equal(t, doubles[0].DayOfWeek, doubles[1].DayOfWeek)
	for _, row := range store.schedules {
		assert.Equal(t, []string{"t1"}, []string(row.TeacherIDs))
		assert.NotEqual(t, "ts-break", row.TimeSlotID)
	}
	assert.Equal(t, 1, store.rowLocks)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateLogsStaleCache(t *testing.T) {
	store := newMemoryStore()
	store.addSubject("math", "Math", false, "")
	store.addWorkload("w1", "c1", "math", "t1", 2)
	tx, mock := newSQLMockTx(t)
	core, logs := observer.New(zap.WarnLevel)
	cache := NewCacheService(&unreachableCache{memoryCache{items: map[string]interface{}{}}}, nil, time.Minute, nil, true)
	svc := NewTimetableService(
		store.repositories(),
		tx,
		scheduler.NewEngine(scheduler.DefaultWeights, nil),
		NewSchoolLock(nil, time.Minute, 0, nil, nil),
		cache,
		NewMetricsService(),
		nil,
		zap.New(core),
		TimetableConfig{DefaultAttempts: 1, MaxAttempts: 5},
	)

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Generate(context.Background(), "school-1", dto.GenerateTimetableRequest{Seed: seed(3)})
	require.NoError(t, err, "a cache outage does not fail a committed run")

	entries := logs.FilterMessage("stale timetable grids remain cached").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, resp.RunID, fields["run_id"])
	assert.Equal(t, "school-1", fields["school_id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceRegenerationReplacesRows(t *testing.T) {
	store := newMemoryStore()
	store.addSubject("math", "Math", true, "")
	store.addSubject("bio", "Biology", false, "")
	store.addWorkload("w1", "c1", "math", "t1", 5)
	store.addWorkload("w2", "c2", "bio", "t1", 3)
	svc, mock := newTimetableServiceFixture(t, store, nil)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		resp, err := svc.Generate(context.Background(), "school-1", dto.GenerateTimetableRequest{Seed: seed(11)})
		require.NoError(t, err)
		assert.Equal(t, i+1, resp.Version)
		assert.Len(t, store.schedules, 8)
	}

	runs, err := svc.Runs(context.Background(), "school-1", dto.TimetableRunQuery{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGeneratePartialRecordsUnplaced(t *testing.T) {
	store := newMemoryStore()
	store.addSubject("math", "Math", false, "")
	store.addSubject("bio", "Biology", false, "")
	store.addWorkload("w1", "c1", "math", "t1", 20)
	store.addWorkload("w2", "c1", "bio", "t2", 15)
	svc, mock := newTimetableServiceFixture(t, store, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Generate(context.Background(), "school-1", dto.GenerateTimetableRequest{Seed: seed(3), Attempts: 2})
	require.NoError(t, err)
	assert.Equal(t, models.TimetableRunStatusPartial, resp.Status)
	assert.Equal(t, 30, resp.PlacedPeriods)
	assert.Equal(t, 5, resp.UnplacedPeriods)
	assert.Equal(t, 2, resp.Attempts)

	unplaced, run, err := svc.Unplaced(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, resp.RunID, run.ID)
	total := lo.SumBy(unplaced, func(item dto.UnplacedRequirement) int { return item.Unplaced })
	assert.Equal(t, 5, total)
	for _, item := range unplaced {
		assert.Equal(t, "10A", item.Class)
		assert.LessOrEqual(t, item.Unplaced, item.Total)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateClampsAttempts(t *testing.T) {
	store := newMemoryStore()
	store.addSubject("math", "Math", false, "")
	store.addWorkload("w1", "c1", "math", "t1", 2)
	svc, mock := newTimetableServiceFixture(t, store, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Generate(context.Background(), "school-1", dto.GenerateTimetableRequest{Seed: seed(1), Attempts: 50})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Attempts)
}

func TestTimetableServiceGenerateRollsBackOnPersistenceFailure(t *testing.T) {
	store := newMemoryStore()
	store.addSubject("math", "Math", false, "")
	store.addWorkload("w1", "c1", "math", "t1", 2)
	store.insertErr = errors.New("disk full")
	svc, mock := newTimetableServiceFixture(t, store, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Generate(context.Background(), "school-1", dto.GenerateTimetableRequest{Seed: seed(1)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.runs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateRejectsDanglingReferences(t *testing.T) {
	store := newMemoryStore()
	store.addSubject("math", "Math", false, "")
	store.addWorkload("w1", "c1", "math", "ghost", 2)
	store.addWorkload("w2", "c9", "math", "t1", 2)
	svc, mock := newTimetableServiceFixture(t, store, nil)

	_, err := svc.Generate(context.Background(), "school-1", dto.GenerateTimetableRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidConfiguration.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "unknown teacher ghost")
	assert.Contains(t, appErr.Message, "unknown class c9")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateRejectsInconsistentElectiveGroup(t *testing.T) {
	store := newMemoryStore()
	store.addSubject("art", "Art", false, "g1")
	store.addSubject("music", "Music", false, "g1")
	store.addWorkload("w1", "c1", "art", "t1", 2)
	store.addWorkload("w2", "c2", "music", "t2", 3)
	svc, _ := newTimetableServiceFixture(t, store, nil)

	_, err := svc.Generate(context.Background(), "school-1", dto.GenerateTimetableRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidConfiguration.Code, appErrors.FromError(err).Code)
	assert.ErrorIs(t, err, scheduler.ErrInconsistentElectiveGroup)
}

func TestTimetableServiceGenerateUnknownSchool(t *testing.T) {
	svc, _ := newTimetableServiceFixture(t, newMemoryStore(), nil)

	_, err := svc.Generate(context.Background(), "missing", dto.GenerateTimetableRequest{})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Generate(context.Background(), " ", dto.GenerateTimetableRequest{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceGenerateHonoursLock(t *testing.T) {
	lock := &lockStub{err: appErrors.Clone(appErrors.ErrLocked, "busy")}
	svc, _ := newTimetableServiceFixture(t, newMemoryStore(), lock)

	_, err := svc.Generate(context.Background(), "school-1", dto.GenerateTimetableRequest{})
	assert.Equal(t, appErrors.ErrLocked.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceUnplacedWithoutRuns(t *testing.T) {
	svc, _ := newTimetableServiceFixture(t, newMemoryStore(), nil)

	_, _, err := svc.Unplaced(context.Background(), "school-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceAsyncGeneration(t *testing.T) {
	store := newMemoryStore()
	store.addSubject("math", "Math", true, "")
	store.addWorkload("w1", "c1", "math", "t1", 4)
	svc, mock := newTimetableServiceFixture(t, store, nil)

	_, err := svc.GenerateAsync(context.Background(), "school-1", dto.GenerateTimetableRequest{Async: true})
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)

	queue := &queueStub{}
	svc.AttachQueue(queue)
	status, err := svc.GenerateAsync(context.Background(), "school-1", dto.GenerateTimetableRequest{Async: true})
	require.NoError(t, err)
	assert.Equal(t, dto.TimetableJobQueued, status.State)
	require.Len(t, queue.jobs, 1)
	payload := queue.jobs[0].Payload.(generateJobPayload)
	require.NotNil(t, payload.Request.Seed)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	done, err := svc.JobStatus(status.JobID)
	require.NoError(t, err)
	assert.Equal(t, dto.TimetableJobDone, done.State)
	require.NotNil(t, done.Result)
	assert.Equal(t, *payload.Request.Seed, done.Result.Seed)
	assert.Equal(t, 1, done.Attempt)

	_, err = svc.JobStatus("unknown")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceHandleJobRetriesOnlyLockContention(t *testing.T) {
	lock := &lockStub{err: appErrors.Clone(appErrors.ErrLocked, "busy")}
	svc, _ := newTimetableServiceFixture(t, newMemoryStore(), lock)
	svc.AttachQueue(&queueStub{})

	status, err := svc.GenerateAsync(context.Background(), "school-1", dto.GenerateTimetableRequest{})
	require.NoError(t, err)
	job := jobs.Job{ID: status.JobID, Type: JobTypeGenerateTimetable, Payload: generateJobPayload{SchoolID: "school-1"}}

	err = svc.HandleJob(context.Background(), job)
	require.Error(t, err)
	assert.False(t, jobs.IsPermanent(err))
	queued, _ := svc.JobStatus(status.JobID)
	assert.Equal(t, dto.TimetableJobQueued, queued.State)

	lock.err = nil
	job.Payload = generateJobPayload{SchoolID: "missing"}
	err = svc.HandleJob(context.Background(), job)
	assert.True(t, jobs.IsPermanent(err))
	failed, _ := svc.JobStatus(status.JobID)
	assert.Equal(t, dto.TimetableJobFailed, failed.State)
	assert.NotEmpty(t, failed.Error)

	assert.True(t, jobs.IsPermanent(svc.HandleJob(context.Background(), jobs.Job{ID: "x", Payload: "bad"})))
}
