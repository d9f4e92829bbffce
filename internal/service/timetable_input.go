package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type schoolReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type classLister interface {
	ListBySchool(ctx context.Context, schoolID string) ([]models.Class, error)
	FindByID(ctx context.Context, schoolID, id string) (*models.Class, error)
}

type teacherLister interface {
	ListBySchool(ctx context.Context, schoolID string) ([]models.Teacher, error)
	FindByID(ctx context.Context, schoolID, id string) (*models.Teacher, error)
}

type subjectLister interface {
	ListBySchool(ctx context.Context, schoolID string) ([]models.Subject, error)
	ListElectiveGroups(ctx context.Context, schoolID string) ([]models.ElectiveGroup, error)
}

type workloadLister interface {
	ListBySchool(ctx context.Context, schoolID string) ([]models.Workload, error)
}

type timeSlotLister interface {
	ListBySchool(ctx context.Context, schoolID string) ([]models.TimeSlot, error)
}

// timetableInput is everything read from the store for one school.
type timetableInput struct {
	School    models.School
	Classes   map[string]models.Class
	Teachers  map[string]models.Teacher
	Subjects  map[string]models.Subject
	Groups    map[string]models.ElectiveGroup
	Workloads []models.Workload
	TimeSlots []models.TimeSlot
	Days      []string
}

// Engine converts the loaded rows into the scheduler input.
func (in *timetableInput) Engine() scheduler.Input {
	reqs := make([]scheduler.Requirement, 0, len(in.Workloads))
	for _, w := range in.Workloads {
		subject := in.Subjects[w.SubjectID]
		req := scheduler.Requirement{
			ID:              w.ID,
			ClassID:         w.ClassID,
			ClassName:       in.Classes[w.ClassID].Name,
			SubjectID:       w.SubjectID,
			SubjectName:     subject.Name,
			TeacherID:       w.TeacherID,
			TeacherName:     in.Teachers[w.TeacherID].Name,
			LessonsPerWeek:  w.LessonsPerWeek,
			HasDoubleLesson: subject.HasDoubleLesson,
		}
		if subject.ElectiveGroupID != nil {
			req.ElectiveGroupID = *subject.ElectiveGroupID
			req.ElectiveGroupName = in.Groups[*subject.ElectiveGroupID].Name
		}
		reqs = append(reqs, req)
	}

	slots := lo.Map(in.TimeSlots, func(ts models.TimeSlot, _ int) scheduler.TimeSlot {
		return scheduler.TimeSlot{ID: ts.ID, Name: ts.Name, StartTime: ts.StartTime, EndTime: ts.EndTime, IsBreak: ts.IsBreak}
	})
	return scheduler.Input{Requirements: reqs, TimeSlots: slots, WorkingDays: in.Days}
}

// timetableLoader reads a school's inputs concurrently and validates references.
type timetableLoader struct {
	schools     schoolReader
	classes     classLister
	teachers    teacherLister
	subjects    subjectLister
	workloads   workloadLister
	timeslots   timeSlotLister
	defaultDays []string
}

func (l *timetableLoader) Load(ctx context.Context, schoolID string) (*timetableInput, error) {
	school, err := l.schools.FindByID(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	var (
		classes   []models.Class
		teachers  []models.Teacher
		subjects  []models.Subject
		groups    []models.ElectiveGroup
		workloads []models.Workload
		slots     []models.TimeSlot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		classes, err = l.classes.ListBySchool(gctx, schoolID)
		return err
	})
	g.Go(func() (err error) {
		teachers, err = l.teachers.ListBySchool(gctx, schoolID)
		return err
	})
	g.Go(func() (err error) {
		subjects, err = l.subjects.ListBySchool(gctx, schoolID)
		return err
	})
	g.Go(func() (err error) {
		groups, err = l.subjects.ListElectiveGroups(gctx, schoolID)
		return err
	})
	g.Go(func() (err error) {
		workloads, err = l.workloads.ListBySchool(gctx, schoolID)
		return err
	})
	g.Go(func() (err error) {
		slots, err = l.timeslots.ListBySchool(gctx, schoolID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable inputs")
	}

	days := school.WorkingDayList()
	if len(days) == 0 {
		days = l.defaultDays
	}
	in := &timetableInput{
		School:    *school,
		Classes:   lo.KeyBy(classes, func(c models.Class) string { return c.ID }),
		Teachers:  lo.KeyBy(teachers, func(t models.Teacher) string { return t.ID }),
		Subjects:  lo.KeyBy(subjects, func(s models.Subject) string { return s.ID }),
		Groups:    lo.KeyBy(groups, func(g models.ElectiveGroup) string { return g.ID }),
		Workloads: workloads,
		TimeSlots: sortTimeSlots(slots),
		Days:      scheduler.NormalizeWorkingDays(days),
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *timetableInput) validate() error {
	var problems []string
	if !lo.SomeBy(in.TimeSlots, func(ts models.TimeSlot) bool { return !ts.IsBreak }) {
		problems = append(problems, "school has no teaching timeslots")
	}
	for _, subject := range in.Subjects {
		if subject.ElectiveGroupID == nil {
			continue
		}
		if _, ok := in.Groups[*subject.ElectiveGroupID]; !ok {
			problems = append(problems, fmt.Sprintf("subject %s references unknown elective group %s", subject.ID, *subject.ElectiveGroupID))
		}
	}
	for _, w := range in.Workloads {
		if _, ok := in.Classes[w.ClassID]; !ok {
			problems = append(problems, fmt.Sprintf("workload %s references unknown class %s", w.ID, w.ClassID))
		}
		if _, ok := in.Teachers[w.TeacherID]; !ok {
			problems = append(problems, fmt.Sprintf("workload %s references unknown teacher %s", w.ID, w.TeacherID))
		}
		if _, ok := in.Subjects[w.SubjectID]; !ok {
			problems = append(problems, fmt.Sprintf("workload %s references unknown subject %s", w.ID, w.SubjectID))
		}
		if w.LessonsPerWeek < 1 {
			problems = append(problems, fmt.Sprintf("workload %s must have at least one lesson per week", w.ID))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return appErrors.Clone(appErrors.ErrInvalidConfiguration, strings.Join(problems, "; "))
}

func sortTimeSlots(slots []models.TimeSlot) []models.TimeSlot {
	sorted := append([]models.TimeSlot(nil), slots...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].StartTime < sorted[j].StartTime
	})
	return sorted
}
