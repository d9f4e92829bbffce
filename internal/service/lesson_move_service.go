package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type scheduleMover interface {
	ListBySchool(ctx context.Context, exec sqlx.ExtContext, schoolID string) ([]models.ScheduleDetail, error)
	UpdatePosition(ctx context.Context, exec sqlx.ExtContext, id, classID, day, timeSlotID string) error
}

// LessonMoveService relocates placed lessons after re-checking availability inside a transaction.
type LessonMoveService struct {
	schools     schoolReader
	classes     classLister
	timeslots   timeSlotLister
	schedules   scheduleMover
	lock        schoolLocker
	tx          txProvider
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	defaultDays []string
	logger      *zap.Logger
}

// NewLessonMoveService wires the move validator.
func NewLessonMoveService(
	schools schoolReader,
	classes classLister,
	timeslots timeSlotLister,
	schedules scheduleMover,
	lock schoolLocker,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	defaultDays []string,
	logger *zap.Logger,
) *LessonMoveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(defaultDays) == 0 {
		defaultDays = scheduler.DefaultWorkingDays
	}
	return &LessonMoveService{
		schools:     schools,
		classes:     classes,
		timeslots:   timeslots,
		schedules:   schedules,
		lock:        lock,
		tx:          tx,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		defaultDays: defaultDays,
		logger:      logger,
	}
}

// movePlan is the target position of one row of the moved placement.
type movePlan struct {
	row     models.ScheduleDetail
	classID string
	day     int
	period  int
}

func rejectMove(reason string, err error) (*dto.MoveLessonResponse, error) {
	return &dto.MoveLessonResponse{Success: false, Reason: reason}, err
}

// Move relocates the placement holding req.LessonID. Every row of a double or
// horizontal elective moves with it; the selected row lands on the target slot.
func (s *LessonMoveService) Move(ctx context.Context, schoolID string, req dto.MoveLessonRequest) (resp *dto.MoveLessonResponse, err error) {
	defer func() {
		if resp != nil {
			s.metrics.RecordMove(resp.Success)
		}
	}()

	if strings.TrimSpace(schoolID) == "" {
		return rejectMove(dto.MoveReasonMissingFields, appErrors.Clone(appErrors.ErrValidation, dto.MoveReasonMissingFields))
	}
	if vErr := s.validator.Struct(req); vErr != nil {
		return rejectMove(dto.MoveReasonMissingFields, appErrors.Wrap(vErr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, dto.MoveReasonMissingFields))
	}

	release, lockErr := s.lock.Acquire(ctx, schoolID)
	if lockErr != nil {
		return nil, lockErr
	}
	defer release()

	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		return nil, notFoundOrInternal(err, "school not found", "failed to load school")
	}
	if _, err := s.classes.FindByID(ctx, schoolID, req.TargetClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rejectMove(dto.MoveReasonInvalidTarget, appErrors.Clone(appErrors.ErrNotFound, "target class not found"))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target class")
	}
	slots, err := s.timeslots.ListBySchool(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timeslots")
	}
	slots = sortTimeSlots(slots)

	days := school.WorkingDayList()
	if len(days) == 0 {
		days = s.defaultDays
	}
	days = scheduler.NormalizeWorkingDays(days)
	grid := scheduler.NewGrid(len(days), lo.Map(slots, func(ts models.TimeSlot, _ int) scheduler.TimeSlot {
		return scheduler.TimeSlot{ID: ts.ID, Name: ts.Name, IsBreak: ts.IsBreak}
	}))

	targetDay := dayIndex(days, req.TargetDay)
	if targetDay < 0 {
		return rejectMove(dto.MoveReasonInvalidTarget, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is not a working day", req.TargetDay)))
	}
	targetPeriod, ok := grid.PeriodOf(req.TargetTimeslotID)
	if !ok || grid.IsBreak(targetPeriod) {
		return rejectMove(dto.MoveReasonInvalidTarget, appErrors.Clone(appErrors.ErrValidation, "target timeslot is not a teaching period"))
	}

	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.schools.LockForUpdate(ctx, tx, schoolID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock school")
	}
	rows, err := s.schedules.ListBySchool(ctx, tx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	lesson, found := lo.Find(rows, func(row models.ScheduleDetail) bool { return row.ID == req.LessonID })
	if !found {
		return rejectMove(dto.MoveReasonInvalidTarget, appErrors.Clone(appErrors.ErrNotFound, "lesson not found"))
	}
	if lesson.IsHorizontalElective && req.TargetClassID != lesson.ClassID {
		return rejectMove(dto.MoveReasonInvalidTarget, appErrors.Clone(appErrors.ErrValidation, "a horizontal elective cannot change class"))
	}

	plans, err := s.plan(grid, days, rows, lesson, req.TargetClassID, targetDay, targetPeriod)
	if err != nil {
		return rejectMove(dto.MoveReasonInvalidTarget, err)
	}

	conflicts := moveConflicts(grid, days, plans)
	if len(conflicts) > 0 {
		s.logger.Info("lesson move rejected",
			zap.String("school_id", schoolID),
			zap.String("lesson_id", req.LessonID),
			zap.Int("conflicts", len(conflicts)),
		)
		conflictErr := &models.ScheduleConflictError{Type: "SLOT_OCCUPIED", Message: "target slot is occupied", Errors: conflicts}
		return &dto.MoveLessonResponse{Success: false, Reason: dto.MoveReasonSlotOccupied, Conflicts: conflicts},
			appErrors.Wrap(conflictErr, appErrors.ErrSlotOccupied.Code, appErrors.ErrSlotOccupied.Status, dto.MoveReasonSlotOccupied)
	}

	moved := make([]string, 0, len(plans))
	for _, p := range plans {
		if err := s.schedules.UpdatePosition(ctx, tx, p.row.ID, p.classID, days[p.day], grid.Slot(p.period).ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move lesson")
		}
		moved = append(moved, p.row.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit lesson move")
	}
	committed = true

	if err := s.cache.InvalidateSchool(ctx, schoolID); err != nil {
		s.logger.Warn("stale timetable grids remain cached",
			zap.String("school_id", schoolID),
			zap.String("lesson_id", req.LessonID),
			zap.String("placement_id", lesson.PlacementID),
			zap.Error(err),
		)
	}
	s.logger.Info("lesson moved",
		zap.String("school_id", schoolID),
		zap.String("lesson_id", req.LessonID),
		zap.String("placement_id", lesson.PlacementID),
		zap.Strings("moved", moved),
	)
	return &dto.MoveLessonResponse{Success: true, MovedIDs: moved}, nil
}

// plan reserves every row outside the placement in grid and computes the new position of each placement row.
func (s *LessonMoveService) plan(grid *scheduler.Grid, days []string, rows []models.ScheduleDetail, lesson models.ScheduleDetail, targetClass string, targetDay, targetPeriod int) ([]movePlan, error) {
	anchor, ok := grid.PeriodOf(lesson.TimeSlotID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidConfiguration, "lesson references an unknown timeslot")
	}

	var plans []movePlan
	for _, row := range rows {
		period, okPeriod := grid.PeriodOf(row.TimeSlotID)
		day := dayIndex(days, row.DayOfWeek)
		if row.PlacementID != lesson.PlacementID {
			if okPeriod && day >= 0 {
				grid.Reserve([]string{row.ClassID}, row.TeacherIDs, day, period, 1)
			}
			continue
		}
		if !okPeriod {
			return nil, appErrors.Clone(appErrors.ErrInvalidConfiguration, "lesson references an unknown timeslot")
		}
		classID := row.ClassID
		if !lesson.IsHorizontalElective {
			classID = targetClass
		}
		plans = append(plans, movePlan{row: row, classID: classID, day: targetDay, period: targetPeriod + period - anchor})
	}

	byClass := lo.GroupBy(plans, func(p movePlan) string { return p.classID })
	for _, group := range byClass {
		periods := lo.Map(group, func(p movePlan, _ int) int { return p.period })
		sort.Ints(periods)
		if !grid.Contiguous(periods[0], len(periods)) || periods[len(periods)-1]-periods[0] != len(periods)-1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "target slot cannot hold the whole lesson without crossing a break or the end of the day")
		}
	}
	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].classID != plans[j].classID {
			return plans[i].classID < plans[j].classID
		}
		return plans[i].period < plans[j].period
	})
	return plans, nil
}

func moveConflicts(grid *scheduler.Grid, days []string, plans []movePlan) []models.ScheduleConflict {
	seen := make(map[scheduler.Conflict]bool)
	var conflicts []models.ScheduleConflict
	for _, p := range plans {
		for _, c := range grid.Conflicts([]string{p.classID}, p.row.TeacherIDs, p.day, p.period, 1) {
			if seen[c] {
				continue
			}
			seen[c] = true
			conflicts = append(conflicts, models.ScheduleConflict{
				Dimension:  string(c.Resource),
				ResourceID: c.ID,
				DayOfWeek:  days[c.Day],
				TimeSlotID: grid.Slot(c.Period).ID,
			})
		}
	}
	return conflicts
}

func dayIndex(days []string, day string) int {
	for i, d := range days {
		if strings.EqualFold(d, strings.TrimSpace(day)) {
			return i
		}
	}
	return -1
}
