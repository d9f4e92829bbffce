package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

type sqlmockTx struct {
	db *sqlx.DB
}

func (p *sqlmockTx) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}

func newSQLMockTx(t *testing.T) (*sqlmockTx, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &sqlmockTx{db: sqlx.NewDb(db, "sqlmock")}, mock
}

// memoryStore backs every repository interface of the timetable services.
type memoryStore struct {
	mu        sync.Mutex
	school    models.School
	classes   []models.Class
	teachers  []models.Teacher
	subjects  []models.Subject
	groups    []models.ElectiveGroup
	workloads []models.Workload
	slots     []models.TimeSlot
	schedules []models.ScheduleDetail
	runs      []models.TimetableRun
	insertErr error
	rowLocks  int
}

func newMemoryStore() *memoryStore {
	store := &memoryStore{
		school: models.School{ID: "school-1", Name: "SMA 1", WorkingDays: "Monday,Tuesday,Wednesday,Thursday,Friday"},
		classes: []models.Class{
			{ID: "c1", SchoolID: "school-1", Name: "10A"},
			{ID: "c2", SchoolID: "school-1", Name: "10B"},
		},
		teachers: []models.Teacher{
			{ID: "t1", SchoolID: "school-1", Name: "Ana"},
			{ID: "t2", SchoolID: "school-1", Name: "Ben"},
			{ID: "t3", SchoolID: "school-1", Name: "Cy"},
			{ID: "t4", SchoolID: "school-1", Name: "Dee"},
		},
	}
	names := []string{"P1", "P2", "P3", "Break", "P4", "P5", "P6"}
	for i, name := range names {
		store.slots = append(store.slots, models.TimeSlot{
			ID:        slotID(name),
			SchoolID:  "school-1",
			Name:      name,
			StartTime: fmt.Sprintf("%02d:00", 7+i),
			EndTime:   fmt.Sprintf("%02d:45", 7+i),
			IsBreak:   name == "Break",
			Position:  i + 1,
		})
	}
	return store
}

func slotID(name string) string {
	if name == "Break" {
		return "ts-break"
	}
	return "ts-" + name[1:]
}

func (m *memoryStore) addSubject(id, name string, double bool, group string) {
	subject := models.Subject{ID: id, SchoolID: "school-1", Name: name, HasDoubleLesson: double}
	if group != "" {
		subject.ElectiveGroupID = lo.ToPtr(group)
		if !lo.ContainsBy(m.groups, func(g models.ElectiveGroup) bool { return g.ID == group }) {
			m.groups = append(m.groups, models.ElectiveGroup{ID: group, SchoolID: "school-1", Name: "Group " + group})
		}
	}
	m.subjects = append(m.subjects, subject)
}

func (m *memoryStore) addWorkload(id, classID, subjectID, teacherID string, lessons int) {
	m.workloads = append(m.workloads, models.Workload{ID: id, SchoolID: "school-1", ClassID: classID, SubjectID: subjectID, TeacherID: teacherID, LessonsPerWeek: lessons})
}

func (m *memoryStore) addRow(id, placement, classID, day, slot string, teachers ...string) *models.ScheduleDetail {
	position := 0
	for _, ts := range m.slots {
		if ts.ID == slot {
			position = ts.Position
		}
	}
	m.schedules = append(m.schedules, models.ScheduleDetail{
		Schedule: models.Schedule{
			ID:                 id,
			SchoolID:           "school-1",
			ClassID:            classID,
			DayOfWeek:          day,
			TimeSlotID:         slot,
			PlacementID:        placement,
			LessonDisplayName:  "Lesson " + placement,
			TeacherDisplayName: "Teacher",
		},
		TeacherIDs:       teachers,
		TimeSlotPosition: position,
	})
	return &m.schedules[len(m.schedules)-1]
}

func (m *memoryStore) row(id string) models.ScheduleDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, _ := lo.Find(m.schedules, func(r models.ScheduleDetail) bool { return r.ID == id })
	return row
}

type schoolStub struct{ m *memoryStore }

func (s schoolStub) FindByID(_ context.Context, id string) (*models.School, error) {
	if id != s.m.school.ID {
		return nil, sql.ErrNoRows
	}
	school := s.m.school
	return &school, nil
}

func (s schoolStub) LockForUpdate(_ context.Context, _ sqlx.ExtContext, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.rowLocks++
	return nil
}

type classStub struct{ m *memoryStore }

func (s classStub) ListBySchool(context.Context, string) ([]models.Class, error) {
	return s.m.classes, nil
}

func (s classStub) FindByID(_ context.Context, _ string, id string) (*models.Class, error) {
	class, ok := lo.Find(s.m.classes, func(c models.Class) bool { return c.ID == id })
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &class, nil
}

type teacherStub struct{ m *memoryStore }

func (s teacherStub) ListBySchool(context.Context, string) ([]models.Teacher, error) {
	return s.m.teachers, nil
}

func (s teacherStub) FindByID(_ context.Context, _ string, id string) (*models.Teacher, error) {
	teacher, ok := lo.Find(s.m.teachers, func(t models.Teacher) bool { return t.ID == id })
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &teacher, nil
}

type subjectStub struct{ m *memoryStore }

func (s subjectStub) ListBySchool(context.Context, string) ([]models.Subject, error) {
	return s.m.subjects, nil
}

func (s subjectStub) ListElectiveGroups(context.Context, string) ([]models.ElectiveGroup, error) {
	return s.m.groups, nil
}

type workloadStub struct{ m *memoryStore }

func (s workloadStub) ListBySchool(context.Context, string) ([]models.Workload, error) {
	return s.m.workloads, nil
}

type timeslotStub struct{ m *memoryStore }

func (s timeslotStub) ListBySchool(context.Context, string) ([]models.TimeSlot, error) {
	return s.m.slots, nil
}

type scheduleStub struct{ m *memoryStore }

func (s scheduleStub) DeleteBySchool(_ context.Context, _ sqlx.ExtContext, schoolID string) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	deleted := int64(len(s.m.schedules))
	s.m.schedules = nil
	return deleted, nil
}

func (s scheduleStub) InsertBatch(_ context.Context, _ sqlx.ExtContext, rows []models.Schedule, links []models.ScheduleTeacher) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.insertErr != nil {
		return s.m.insertErr
	}
	teachers := lo.GroupBy(links, func(l models.ScheduleTeacher) string { return l.ScheduleID })
	positions := lo.SliceToMap(s.m.slots, func(ts models.TimeSlot) (string, int) { return ts.ID, ts.Position })
	for _, row := range rows {
		row.CreatedAt = time.Now()
		s.m.schedules = append(s.m.schedules, models.ScheduleDetail{
			Schedule:         row,
			TeacherIDs:       lo.Map(teachers[row.ID], func(l models.ScheduleTeacher, _ int) string { return l.TeacherID }),
			TimeSlotPosition: positions[row.TimeSlotID],
		})
	}
	return nil
}

func (s scheduleStub) ListBySchool(_ context.Context, _ sqlx.ExtContext, _ string) ([]models.ScheduleDetail, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return append([]models.ScheduleDetail(nil), s.m.schedules...), nil
}

func (s scheduleStub) ListByClass(_ context.Context, _ string, classID string) ([]models.ScheduleDetail, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return lo.Filter(s.m.schedules, func(r models.ScheduleDetail, _ int) bool { return r.ClassID == classID }), nil
}

func (s scheduleStub) ListByTeacher(_ context.Context, _ string, teacherID string) ([]models.ScheduleDetail, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return lo.Filter(s.m.schedules, func(r models.ScheduleDetail, _ int) bool { return lo.Contains(r.TeacherIDs, teacherID) }), nil
}

func (s scheduleStub) UpdatePosition(_ context.Context, _ sqlx.ExtContext, id, classID, day, timeSlotID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.schedules {
		if s.m.schedules[i].ID == id {
			s.m.schedules[i].ClassID = classID
			s.m.schedules[i].DayOfWeek = day
			s.m.schedules[i].TimeSlotID = timeSlotID
			return nil
		}
	}
	return fmt.Errorf("schedule %s not found", id)
}

type runStub struct{ m *memoryStore }

func (s runStub) CreateVersioned(_ context.Context, _ sqlx.ExtContext, run *models.TimetableRun) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	run.Version = len(s.m.runs) + 1
	run.CreatedAt = time.Now()
	s.m.runs = append(s.m.runs, *run)
	return nil
}

func (s runStub) ListBySchool(_ context.Context, _ string, limit int) ([]models.TimetableRun, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	runs := lo.Reverse(append([]models.TimetableRun(nil), s.m.runs...))
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s runStub) Latest(_ context.Context, _ string) (*models.TimetableRun, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if len(s.m.runs) == 0 {
		return nil, sql.ErrNoRows
	}
	run := s.m.runs[len(s.m.runs)-1]
	return &run, nil
}

func (m *memoryStore) repositories() TimetableRepositories {
	return TimetableRepositories{
		Schools:   schoolStub{m},
		Classes:   classStub{m},
		Teachers:  teacherStub{m},
		Subjects:  subjectStub{m},
		Workloads: workloadStub{m},
		TimeSlots: timeslotStub{m},
		Schedules: scheduleStub{m},
		Runs:      runStub{m},
	}
}

type lockStub struct {
	err      error
	acquired int
	released int
}

func (l *lockStub) Acquire(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() { l.released++ }, nil
}
