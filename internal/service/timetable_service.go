package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// JobTypeGenerateTimetable identifies async regeneration jobs on the queue.
const JobTypeGenerateTimetable = "timetable.generate"

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type scheduleWriter interface {
	DeleteBySchool(ctx context.Context, exec sqlx.ExtContext, schoolID string) (int64, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.Schedule, links []models.ScheduleTeacher) error
}

type timetableRunRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error
	ListBySchool(ctx context.Context, schoolID string, limit int) ([]models.TimetableRun, error)
	Latest(ctx context.Context, schoolID string) (*models.TimetableRun, error)
}

type timetableGenerator interface {
	Generate(ctx context.Context, in scheduler.Input, opts scheduler.Options) (*scheduler.Result, error)
	Weights() scheduler.Weights
}

type schoolLocker interface {
	Acquire(ctx context.Context, schoolID string) (func(), error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// TimetableRepositories groups the readers and writers used by generation.
type TimetableRepositories struct {
	Schools   schoolReader
	Classes   classLister
	Teachers  teacherLister
	Subjects  subjectLister
	Workloads workloadLister
	TimeSlots timeSlotLister
	Schedules scheduleWriter
	Runs      timetableRunRepository
}

// TimetableConfig governs generation behaviour.
type TimetableConfig struct {
	DefaultAttempts    int
	MaxAttempts        int
	DefaultWorkingDays []string
	AsyncRetries       int
	JobTTL             time.Duration
}

// TimetableService regenerates school timetables and keeps their run history.
type TimetableService struct {
	loader    *timetableLoader
	schools   schoolReader
	schedules scheduleWriter
	runs      timetableRunRepository
	engine    timetableGenerator
	lock      schoolLocker
	cache     *CacheService
	metrics   *MetricsService
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TimetableConfig
	jobs      *jobStore
	queue     jobEnqueuer
	now       func() time.Time
}

// NewTimetableService wires generation dependencies.
func NewTimetableService(
	repos TimetableRepositories,
	tx txProvider,
	engine timetableGenerator,
	lock schoolLocker,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultAttempts < 1 {
		cfg.DefaultAttempts = 1
	}
	if cfg.MaxAttempts < cfg.DefaultAttempts {
		cfg.MaxAttempts = cfg.DefaultAttempts
	}
	if len(cfg.DefaultWorkingDays) == 0 {
		cfg.DefaultWorkingDays = scheduler.DefaultWorkingDays
	}
	if cfg.AsyncRetries <= 0 {
		cfg.AsyncRetries = 3
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	return &TimetableService{
		loader: &timetableLoader{
			schools:     repos.Schools,
			classes:     repos.Classes,
			teachers:    repos.Teachers,
			subjects:    repos.Subjects,
			workloads:   repos.Workloads,
			timeslots:   repos.TimeSlots,
			defaultDays: cfg.DefaultWorkingDays,
		},
		schools:   repos.Schools,
		schedules: repos.Schedules,
		runs:      repos.Runs,
		engine:    engine,
		lock:      lock,
		cache:     cache,
		metrics:   metrics,
		tx:        tx,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		jobs:      newJobStore(cfg.JobTTL),
		now:       time.Now,
	}
}

// AttachQueue enables async generation. The queue must dispatch to HandleJob.
func (s *TimetableService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Generate rebuilds the whole timetable of a school and persists it atomically.
func (s *TimetableService) Generate(ctx context.Context, schoolID string, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if strings.TrimSpace(schoolID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	attempts := s.attempts(req.Attempts)
	seed := s.seed(req.Seed)

	release, err := s.lock.Acquire(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	defer release()

	start := s.now()
	input, err := s.loader.Load(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Generate(ctx, input.Engine(), scheduler.Options{Seed: seed, Attempts: attempts})
	if err != nil {
		return nil, translateEngineError(err)
	}

	rows, links := buildScheduleRows(schoolID, result)
	run, err := s.newRun(schoolID, attempts, result)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, schoolID, rows, links, run); err != nil {
		return nil, err
	}
	duration := s.now().Sub(start)

	if err := s.cache.InvalidateSchool(ctx, schoolID); err != nil {
		s.logger.Warn("stale timetable grids remain cached",
			zap.String("school_id", schoolID),
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
	}
	s.metrics.ObserveGeneration(run.Status, len(result.Placements), len(result.Unplaced), duration)

	s.logger.Info("timetable regenerated",
		zap.String("school_id", schoolID),
		zap.String("run_id", run.ID),
		zap.Int("version", run.Version),
		zap.Int("rows", len(rows)),
		zap.Int("unplaced_periods", result.UnplacedPeriods()),
		zap.Duration("duration", duration),
	)

	return &dto.GenerateTimetableResponse{
		RunID:           run.ID,
		SchoolID:        schoolID,
		Version:         run.Version,
		Status:          run.Status,
		Seed:            result.Seed,
		Attempts:        attempts,
		WinningAttempt:  result.Attempt,
		PlacedPeriods:   result.PlacedPeriods(),
		UnplacedPeriods: result.UnplacedPeriods(),
		Entries:         len(rows),
		Score:           result.Score,
		Unplaced:        toUnplacedDTO(result.Summary),
		DurationMs:      duration.Milliseconds(),
	}, nil
}

func (s *TimetableService) persist(ctx context.Context, schoolID string, rows []models.Schedule, links []models.ScheduleTeacher, run *models.TimetableRun) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	start := s.now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.schools.LockForUpdate(ctx, tx, schoolID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock school")
	}
	if _, err = s.schedules.DeleteBySchool(ctx, tx, schoolID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear previous timetable")
	}
	if err = s.schedules.InsertBatch(ctx, tx, rows, links); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable")
	}
	if err = s.runs.CreateVersioned(ctx, tx, run); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record timetable run")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
	}
	s.metrics.ObserveDBQuery("timetable_replace", s.now().Sub(start))
	return nil
}

// runMeta is stored as timetable_runs.meta.
type runMeta struct {
	Unplaced       []scheduler.UnplacedItem `json:"unplaced"`
	Weights        scheduler.Weights        `json:"weights"`
	WorkingDays    []string                 `json:"workingDays"`
	WinningAttempt int                      `json:"winningAttempt"`
	UnitsTotal     int                      `json:"unitsTotal"`
	UnitsUnplaced  int                      `json:"unitsUnplaced"`
}

func (s *TimetableService) newRun(schoolID string, attempts int, result *scheduler.Result) (*models.TimetableRun, error) {
	meta := runMeta{
		Unplaced:       result.Summary,
		Weights:        s.engine.Weights(),
		WorkingDays:    result.WorkingDays,
		WinningAttempt: result.Attempt,
		UnitsTotal:     result.UnitsTotal,
		UnitsUnplaced:  len(result.Unplaced),
	}
	if meta.Unplaced == nil {
		meta.Unplaced = []scheduler.UnplacedItem{}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode run metadata")
	}
	status := models.TimetableRunStatusComplete
	if !result.Complete() {
		status = models.TimetableRunStatusPartial
	}
	return &models.TimetableRun{
		ID:            uuid.NewString(),
		SchoolID:      schoolID,
		Status:        status,
		Seed:          result.Seed,
		Attempts:      attempts,
		PlacedCount:   result.PlacedPeriods(),
		UnplacedCount: result.UnplacedPeriods(),
		Score:         result.Score,
		Meta:          types.JSONText(payload),
	}, nil
}

// buildScheduleRows turns engine entries into rows; the rows of one placement share a placement id.
func buildScheduleRows(schoolID string, result *scheduler.Result) ([]models.Schedule, []models.ScheduleTeacher) {
	placementIDs := make(map[int]string, len(result.Placements))
	rows := make([]models.Schedule, 0, len(result.Entries))
	var links []models.ScheduleTeacher
	for _, entry := range result.Entries {
		placementID, ok := placementIDs[entry.PlacementIndex]
		if !ok {
			placementID = uuid.NewString()
			placementIDs[entry.PlacementIndex] = placementID
		}
		row := models.Schedule{
			ID:                   uuid.NewString(),
			SchoolID:             schoolID,
			ClassID:              entry.ClassID,
			DayOfWeek:            result.WorkingDays[entry.Day],
			TimeSlotID:           entry.TimeSlotID,
			SubjectID:            optionalString(entry.SubjectID),
			ElectiveGroupID:      optionalString(entry.ElectiveGroupID),
			PlacementID:          placementID,
			LessonDisplayName:    entry.DisplayName,
			TeacherDisplayName:   entry.TeacherDisplayName,
			IsDouble:             entry.IsDouble,
			IsElective:           entry.IsElective,
			IsHorizontalElective: entry.IsHorizontalElective,
		}
		rows = append(rows, row)
		for _, teacherID := range entry.TeacherIDs {
			links = append(links, models.ScheduleTeacher{ScheduleID: row.ID, TeacherID: teacherID})
		}
	}
	return rows, links
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func translateEngineError(err error) error {
	switch {
	case errors.Is(err, scheduler.ErrInvalidRequirement),
		errors.Is(err, scheduler.ErrDuplicateRequirement),
		errors.Is(err, scheduler.ErrInconsistentElectiveGroup),
		errors.Is(err, scheduler.ErrNoPeriods):
		return appErrors.Wrap(err, appErrors.ErrInvalidConfiguration.Code, appErrors.ErrInvalidConfiguration.Status, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "timetable generation cancelled")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable generation failed")
	}
}

func toUnplacedDTO(items []scheduler.UnplacedItem) []dto.UnplacedRequirement {
	return lo.Map(items, func(item scheduler.UnplacedItem, _ int) dto.UnplacedRequirement {
		return dto.UnplacedRequirement{
			Key:      item.Key,
			ClassIDs: item.ClassIDs,
			Class:    item.ClassLabel,
			Subject:  item.SubjectLabel,
			Unplaced: item.Unplaced,
			Total:    item.Total,
		}
	})
}

func (s *TimetableService) attempts(requested int) int {
	if requested <= 0 {
		return s.cfg.DefaultAttempts
	}
	return min(requested, s.cfg.MaxAttempts)
}

func (s *TimetableService) seed(requested *int64) int64 {
	if requested != nil {
		return *requested
	}
	return s.now().UnixNano()
}

// Runs lists the generation history of a school, newest first.
func (s *TimetableService) Runs(ctx context.Context, schoolID string, query dto.TimetableRunQuery) ([]models.TimetableRun, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run query")
	}
	runs, err := s.runs.ListBySchool(ctx, schoolID, query.Limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable runs")
	}
	return runs, nil
}

// Unplaced returns the unplaced summary recorded by the latest run.
func (s *TimetableService) Unplaced(ctx context.Context, schoolID string) ([]dto.UnplacedRequirement, *models.TimetableRun, error) {
	run, err := s.runs.Latest(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "no timetable has been generated for this school")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest timetable run")
	}
	var meta runMeta
	if len(run.Meta) > 0 {
		if err := json.Unmarshal(run.Meta, &meta); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode run metadata")
		}
	}
	return toUnplacedDTO(meta.Unplaced), run, nil
}

type generateJobPayload struct {
	SchoolID string
	Request  dto.GenerateTimetableRequest
}

// GenerateAsync queues a regeneration and returns its job status.
func (s *TimetableService) GenerateAsync(ctx context.Context, schoolID string, req dto.GenerateTimetableRequest) (*dto.TimetableJobStatus, error) {
	if strings.TrimSpace(schoolID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "async generation is disabled")
	}
	// Retries must replay the same seed.
	seed := s.seed(req.Seed)
	req.Seed = &seed
	req.Async = false

	status := dto.TimetableJobStatus{
		JobID:     uuid.NewString(),
		SchoolID:  schoolID,
		State:     dto.TimetableJobQueued,
		UpdatedAt: s.now().UTC(),
	}
	s.jobs.Save(status)
	if err := s.queue.Enqueue(jobs.Job{
		ID:      status.JobID,
		Type:    JobTypeGenerateTimetable,
		Key:     schoolID,
		Payload: generateJobPayload{SchoolID: schoolID, Request: req},
	}); err != nil {
		s.jobs.Delete(status.JobID)
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to queue timetable generation")
	}
	s.logger.Info("timetable generation queued", zap.String("school_id", schoolID), zap.String("job_id", status.JobID), zap.Int64("seed", seed))
	return &status, nil
}

// HandleJob runs a queued regeneration. Lock contention is retried by the queue; other failures are final.
func (s *TimetableService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(generateJobPayload)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID))
	}
	s.jobs.Update(job.ID, func(st *dto.TimetableJobStatus) {
		st.State = dto.TimetableJobRunning
		st.Attempt = job.Attempt + 1
		st.UpdatedAt = s.now().UTC()
	})

	resp, err := s.Generate(ctx, payload.SchoolID, payload.Request)
	if err != nil {
		retryable := appErrors.FromError(err).Code == appErrors.ErrLocked.Code && job.Attempt < s.cfg.AsyncRetries
		s.jobs.Update(job.ID, func(st *dto.TimetableJobStatus) {
			st.State = dto.TimetableJobFailed
			if retryable {
				st.State = dto.TimetableJobQueued
			}
			st.Error = err.Error()
			st.UpdatedAt = s.now().UTC()
		})
		if retryable {
			return err
		}
		return jobs.Permanent(err)
	}

	s.jobs.Update(job.ID, func(st *dto.TimetableJobStatus) {
		st.State = dto.TimetableJobDone
		st.Error = ""
		st.Result = resp
		st.UpdatedAt = s.now().UTC()
	})
	return nil
}

// JobStatus reports the state of an async generation.
func (s *TimetableService) JobStatus(jobID string) (*dto.TimetableJobStatus, error) {
	status, ok := s.jobs.Get(jobID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found or expired")
	}
	return &status, nil
}

type jobStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]dto.TimetableJobStatus
}

func newJobStore(ttl time.Duration) *jobStore {
	return &jobStore{ttl: ttl, items: make(map[string]dto.TimetableJobStatus)}
}

func (s *jobStore) Save(status dto.TimetableJobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[status.JobID] = status
}

func (s *jobStore) Update(id string, fn func(*dto.TimetableJobStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.items[id]
	if !ok {
		return
	}
	fn(&status)
	s.items[id] = status
}

func (s *jobStore) Get(id string) (dto.TimetableJobStatus, bool) {
	s.mu.RLock()
	status, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return dto.TimetableJobStatus{}, false
	}
	finished := status.State == dto.TimetableJobDone || status.State == dto.TimetableJobFailed
	if finished && time.Since(status.UpdatedAt) > s.ttl {
		s.Delete(id)
		return dto.TimetableJobStatus{}, false
	}
	return status, true
}

func (s *jobStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
