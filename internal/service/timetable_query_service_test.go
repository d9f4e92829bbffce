package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

type memoryCache struct {
	items map[string]interface{}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	value, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*dest.(*dto.TimetableGrid) = *value.(*dto.TimetableGrid)
	return nil
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.items[key] = value
	return nil
}

func (c *memoryCache) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var deleted int64
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			deleted++
		}
	}
	return deleted, nil
}

func newQueryFixture(t *testing.T) (*TimetableQueryService, *memoryStore, *CacheService) {
	t.Helper()
	store := newMemoryStore()
	store.addRow("s1", "p1", "c1", "Monday", "ts-1", "t1")
	store.addRow("s4", "p3", "c2", "Tuesday", "ts-4", "t1")
	store.addRow("h1", "p4", "c1", "Friday", "ts-6", "t3").IsHorizontalElective = true
	store.addRow("x1", "p9", "c1", "Sunday", "ts-1", "t2")

	cache := NewCacheService(&memoryCache{items: map[string]interface{}{}}, NewMetricsService(), time.Minute, nil, true)
	svc := NewTimetableQueryService(schoolStub{store}, classStub{store}, teacherStub{store}, timeslotStub{store}, scheduleStub{store}, cache, time.Minute, nil, nil)
	return svc, store, cache
}

func TestTimetableQueryServiceClassGrid(t *testing.T) {
	svc, _, _ := newQueryFixture(t)

	grid, hit, err := svc.ClassTimetable(context.Background(), "school-1", "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, dto.GridOwnerClass, grid.OwnerType)
	assert.Equal(t, []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}, grid.Days)
	require.Len(t, grid.Rows, 7)
	assert.True(t, grid.Rows[3].Period.IsBreak)

	require.Len(t, grid.Rows[0].Cells[0], 1)
	assert.Equal(t, "s1", grid.Rows[0].Cells[0][0].ScheduleID)
	require.Len(t, grid.Rows[6].Cells[4], 1)
	assert.True(t, grid.Rows[6].Cells[4][0].IsHorizontalElective)
	assert.Empty(t, grid.Rows[1].Cells[0])

	_, hit, err = svc.ClassTimetable(context.Background(), "school-1", "c1")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestTimetableQueryServiceTeacherGrid(t *testing.T) {
	svc, _, _ := newQueryFixture(t)

	grid, _, err := svc.TeacherTimetable(context.Background(), "school-1", "t1")
	require.NoError(t, err)
	cells := 0
	for _, row := range grid.Rows {
		for _, cell := range row.Cells {
			cells += len(cell)
		}
	}
	assert.Equal(t, 2, cells)
	assert.Equal(t, "c2", grid.Rows[4].Cells[1][0].ClassID)
}

func TestTimetableQueryServiceNotFound(t *testing.T) {
	svc, _, _ := newQueryFixture(t)

	_, _, err := svc.ClassTimetable(context.Background(), "school-1", "c9")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	_, _, err = svc.TeacherTimetable(context.Background(), "school-1", "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCacheServiceInvalidateSchoolPattern(t *testing.T) {
	svc, _, cache := newQueryFixture(t)
	_, _, err := svc.ClassTimetable(context.Background(), "school-1", "c1")
	require.NoError(t, err)

	require.NoError(t, cache.InvalidateSchool(context.Background(), "school-1"))
	_, hit, err := svc.ClassTimetable(context.Background(), "school-1", "c1")
	require.NoError(t, err)
	assert.False(t, hit)
}

type brokenCache struct{ memoryCache }

func (brokenCache) Get(context.Context, string, interface{}) error {
	return errors.New("connection reset")
}

// unreachableCache serves reads but cannot delete keys.
type unreachableCache struct{ memoryCache }

func (unreachableCache) DeleteByPattern(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestCacheServiceInvalidateSchoolReturnsError(t *testing.T) {
	cache := NewCacheService(&unreachableCache{memoryCache{items: map[string]interface{}{}}}, nil, time.Minute, nil, true)

	err := cache.InvalidateSchool(context.Background(), "school-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "school-1")
}

func TestTimetableQueryServiceTreatsCacheErrorsAsMiss(t *testing.T) {
	store := newMemoryStore()
	store.addRow("s1", "p1", "c1", "Monday", "ts-1", "t1")
	cache := NewCacheService(&brokenCache{memoryCache{items: map[string]interface{}{}}}, NewMetricsService(), time.Minute, nil, true)
	svc := NewTimetableQueryService(schoolStub{store}, classStub{store}, teacherStub{store}, timeslotStub{store}, scheduleStub{store}, cache, time.Minute, nil, nil)

	grid, hit, err := svc.ClassTimetable(context.Background(), "school-1", "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "c1", grid.OwnerID)
}

func TestTimetableExportServiceFormats(t *testing.T) {
	query, store, _ := newQueryFixture(t)
	svc := NewTimetableExportService(query, classStub{store}, teacherStub{store}, nil)

	doc, err := svc.Export(context.Background(), "school-1", dto.GridOwnerClass, "c1", "CSV")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", doc.ContentType)
	assert.Equal(t, "timetable-class-10a.csv", doc.Filename)
	content := string(doc.Content)
	assert.True(t, strings.HasPrefix(content, "Period,Monday,Tuesday,Wednesday,Thursday,Friday\n"))
	assert.Contains(t, content, "Lesson p1")
	assert.Contains(t, content, "Break (10:00-10:45),Break,Break,Break,Break,Break")

	doc, err = svc.Export(context.Background(), "school-1", dto.GridOwnerTeacher, "t1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "timetable-teacher-ana.pdf", doc.Filename)

	doc, err = svc.Export(context.Background(), "school-1", dto.GridOwnerClass, "c1", "xlsx")
	require.NoError(t, err)
	assert.Equal(t, "timetable-class-10a.xlsx", doc.Filename)
	assert.True(t, strings.HasPrefix(string(doc.Content), "PK"))

	_, err = svc.Export(context.Background(), "school-1", dto.GridOwnerClass, "c1", "docx")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	_, err = svc.Export(context.Background(), "school-1", "room", "r1", "csv")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGridDatasetPrefixesClassesForTeachers(t *testing.T) {
	grid := &dto.TimetableGrid{
		Days: []string{"Monday"},
		Rows: []dto.TimetableRow{{
			Period: dto.PeriodHeader{Name: "P1"},
			Cells:  [][]dto.LessonCell{{{ClassID: "c1", DisplayName: "Math", TeacherDisplayName: "Ana"}}},
		}},
	}
	data := gridDataset(grid, "Timetable for Ana", map[string]string{"c1": "10A"})
	assert.Equal(t, []string{"Period", "Monday"}, data.Headers)
	assert.Equal(t, [][]string{{"P1", "10A: Math\nAna"}}, data.Rows)
}

func TestTimetableExportServiceLinks(t *testing.T) {
	query, store, _ := newQueryFixture(t)
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewTimetableExportService(query, classStub{store}, teacherStub{store}, nil).
		WithLinks(files, storage.NewSignedURLSigner("secret", time.Hour), ExportLinkConfig{APIPrefix: "/api/v1/"})
	svc.now = func() time.Time { return time.Date(2025, 7, 14, 8, 0, 0, 0, time.UTC) }

	link, err := svc.Publish(context.Background(), "school-1", dto.GridOwnerClass, "c1", "csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "/api/v1/exports/"))
	assert.Equal(t, "timetable-class-10a.csv", link.Filename)

	stored, err := svc.OpenLink(strings.TrimPrefix(link.URL, "/api/v1/exports/"))
	require.NoError(t, err)
	defer stored.File.Close()
	assert.Equal(t, "timetable-class-10a.csv", stored.Filename)
	assert.Equal(t, "text/csv", stored.ContentType)
	content, err := io.ReadAll(stored.File)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Period,Monday")

	_, err = svc.OpenLink("forged.token.value.sig")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	removed, err := svc.Cleanup()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestTimetableExportServiceLinksDisabled(t *testing.T) {
	query, store, _ := newQueryFixture(t)
	svc := NewTimetableExportService(query, classStub{store}, teacherStub{store}, nil)

	_, err := svc.Publish(context.Background(), "school-1", dto.GridOwnerClass, "c1", "csv")
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)
}
