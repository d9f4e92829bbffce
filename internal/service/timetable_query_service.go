package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type scheduleReader interface {
	ListByClass(ctx context.Context, schoolID, classID string) ([]models.ScheduleDetail, error)
	ListByTeacher(ctx context.Context, schoolID, teacherID string) ([]models.ScheduleDetail, error)
}

// TimetableQueryService reconstructs class and teacher grids from persisted rows.
type TimetableQueryService struct {
	schools     schoolReader
	classes     classLister
	teachers    teacherLister
	timeslots   timeSlotLister
	schedules   scheduleReader
	cache       *CacheService
	cacheTTL    time.Duration
	defaultDays []string
	logger      *zap.Logger
}

// NewTimetableQueryService wires the read path.
func NewTimetableQueryService(
	schools schoolReader,
	classes classLister,
	teachers teacherLister,
	timeslots timeSlotLister,
	schedules scheduleReader,
	cache *CacheService,
	cacheTTL time.Duration,
	defaultDays []string,
	logger *zap.Logger,
) *TimetableQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(defaultDays) == 0 {
		defaultDays = scheduler.DefaultWorkingDays
	}
	return &TimetableQueryService{
		schools:     schools,
		classes:     classes,
		teachers:    teachers,
		timeslots:   timeslots,
		schedules:   schedules,
		cache:       cache,
		cacheTTL:    cacheTTL,
		defaultDays: defaultDays,
		logger:      logger,
	}
}

// ClassTimetable returns the week of one class. The bool reports a cache hit.
func (s *TimetableQueryService) ClassTimetable(ctx context.Context, schoolID, classID string) (*dto.TimetableGrid, bool, error) {
	if strings.TrimSpace(schoolID) == "" || strings.TrimSpace(classID) == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "schoolId and classId are required")
	}
	return s.cachedGrid(ctx, schoolID, dto.GridOwnerClass, classID, func() (*dto.TimetableGrid, error) {
		if _, err := s.classes.FindByID(ctx, schoolID, classID); err != nil {
			return nil, notFoundOrInternal(err, "class not found", "failed to load class")
		}
		rows, err := s.schedules.ListByClass(ctx, schoolID, classID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class timetable")
		}
		return s.assemble(ctx, schoolID, dto.GridOwnerClass, classID, rows)
	})
}

// TeacherTimetable returns the week of one teacher across every class.
func (s *TimetableQueryService) TeacherTimetable(ctx context.Context, schoolID, teacherID string) (*dto.TimetableGrid, bool, error) {
	if strings.TrimSpace(schoolID) == "" || strings.TrimSpace(teacherID) == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "schoolId and teacherId are required")
	}
	return s.cachedGrid(ctx, schoolID, dto.GridOwnerTeacher, teacherID, func() (*dto.TimetableGrid, error) {
		if _, err := s.teachers.FindByID(ctx, schoolID, teacherID); err != nil {
			return nil, notFoundOrInternal(err, "teacher not found", "failed to load teacher")
		}
		rows, err := s.schedules.ListByTeacher(ctx, schoolID, teacherID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher timetable")
		}
		return s.assemble(ctx, schoolID, dto.GridOwnerTeacher, teacherID, rows)
	})
}

func (s *TimetableQueryService) cachedGrid(ctx context.Context, schoolID, ownerType, ownerID string, load func() (*dto.TimetableGrid, error)) (*dto.TimetableGrid, bool, error) {
	var cached dto.TimetableGrid
	if s.cache.Grid(ctx, schoolID, ownerType, ownerID, &cached) {
		return &cached, true, nil
	}
	grid, err := load()
	if err != nil {
		return nil, false, err
	}
	s.cache.StoreGrid(ctx, schoolID, grid, s.cacheTTL)
	return grid, false, nil
}

func (s *TimetableQueryService) assemble(ctx context.Context, schoolID, ownerType, ownerID string, rows []models.ScheduleDetail) (*dto.TimetableGrid, error) {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		return nil, notFoundOrInternal(err, "school not found", "failed to load school")
	}
	slots, err := s.timeslots.ListBySchool(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timeslots")
	}
	days := school.WorkingDayList()
	if len(days) == 0 {
		days = s.defaultDays
	}
	days = scheduler.NormalizeWorkingDays(days)

	grid, skipped := buildGrid(schoolID, ownerType, ownerID, days, sortTimeSlots(slots), rows)
	if skipped > 0 {
		s.logger.Warn("timetable rows outside the working week",
			zap.String("school_id", schoolID), zap.String("owner", ownerType+":"+ownerID), zap.Int("rows", skipped))
	}
	return grid, nil
}

// buildGrid places rows into a timeslot x day matrix. Rows on unknown days or slots are counted and skipped.
func buildGrid(schoolID, ownerType, ownerID string, days []string, slots []models.TimeSlot, rows []models.ScheduleDetail) (*dto.TimetableGrid, int) {
	dayIndex := make(map[string]int, len(days))
	for i, day := range days {
		dayIndex[strings.ToLower(day)] = i
	}
	slotIndex := make(map[string]int, len(slots))
	grid := &dto.TimetableGrid{
		SchoolID:  schoolID,
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Days:      days,
		Rows:      make([]dto.TimetableRow, len(slots)),
	}
	for i, slot := range slots {
		slotIndex[slot.ID] = i
		grid.Rows[i] = dto.TimetableRow{
			Period: dto.PeriodHeader{
				TimeSlotID: slot.ID,
				Name:       slot.Name,
				StartTime:  slot.StartTime,
				EndTime:    slot.EndTime,
				IsBreak:    slot.IsBreak,
			},
			Cells: make([][]dto.LessonCell, len(days)),
		}
		for d := range days {
			grid.Rows[i].Cells[d] = []dto.LessonCell{}
		}
	}

	skipped := 0
	for _, row := range rows {
		d, okDay := dayIndex[strings.ToLower(row.DayOfWeek)]
		p, okSlot := slotIndex[row.TimeSlotID]
		if !okDay || !okSlot {
			skipped++
			continue
		}
		grid.Rows[p].Cells[d] = append(grid.Rows[p].Cells[d], toLessonCell(row))
	}
	return grid, skipped
}

func toLessonCell(row models.ScheduleDetail) dto.LessonCell {
	return dto.LessonCell{
		ScheduleID:           row.ID,
		PlacementID:          row.PlacementID,
		ClassID:              row.ClassID,
		SubjectID:            lo.FromPtr(row.SubjectID),
		ElectiveGroupID:      lo.FromPtr(row.ElectiveGroupID),
		DisplayName:          row.LessonDisplayName,
		TeacherDisplayName:   row.TeacherDisplayName,
		TeacherIDs:           append([]string{}, row.TeacherIDs...),
		IsDouble:             row.IsDouble,
		IsElective:           row.IsElective,
		IsHorizontalElective: row.IsHorizontalElective,
	}
}

func notFoundOrInternal(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
