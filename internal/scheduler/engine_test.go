package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fiveDays() []string {
	return []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}
}

// assertNoDoubleBooking checks that no class or teacher occupies the same day/period twice.
func assertNoDoubleBooking(t *testing.T, entries []Entry) {
	t.Helper()
	classCells := make(map[string]bool)
	teacherCells := make(map[string]int)
	for _, entry := range entries {
		cell := fmt.Sprintf("%s|%d|%d", entry.ClassID, entry.Day, entry.Period)
		require.Falsef(t, classCells[cell], "class double booked at %s", cell)
		classCells[cell] = true
	}
	// a horizontal elective emits one row per class for the same teachers; count placements not rows
	seen := make(map[string]bool)
	for _, entry := range entries {
		for _, teacherID := range entry.TeacherIDs {
			placementCell := fmt.Sprintf("%d|%s|%d|%d", entry.PlacementIndex, teacherID, entry.Day, entry.Period)
			if seen[placementCell] {
				continue
			}
			seen[placementCell] = true
			cell := fmt.Sprintf("%s|%d|%d", teacherID, entry.Day, entry.Period)
			teacherCells[cell]++
			require.LessOrEqualf(t, teacherCells[cell], 1, "teacher double booked at %s", cell)
		}
	}
}

func TestGenerateSingleClassWithDoubleLesson(t *testing.T) {
	engine := NewEngine(Weights{}, nil)
	result, err := engine.Generate(context.Background(), Input{
		Requirements: []Requirement{
			{ID: "w1", ClassID: "c1", SubjectID: "math", SubjectName: "Math", TeacherID: "t1", LessonsPerWeek: 5, HasDoubleLesson: true},
		},
		TimeSlots:   testSlots(6),
		WorkingDays: fiveDays(),
	}, Options{Seed: 7, Attempts: 1})
	require.NoError(t, err)

	assert.True(t, result.Complete())
	assert.Empty(t, result.Summary)
	require.Len(t, result.Entries, 5)

	doubles := 0
	singles := 0
	for _, placement := range result.Placements {
		if placement.Unit.Duration == 2 {
			doubles++
		} else {
			singles++
		}
	}
	assert.Equal(t, 1, doubles)
	assert.Equal(t, 3, singles)

	var doubleRows []Entry
	for _, entry := range result.Entries {
		if entry.IsDouble {
			doubleRows = append(doubleRows, entry)
		}
	}
	require.Len(t, doubleRows, 2)
	assert.Equal(t, doubleRows[0].Day, doubleRows[1].Day)
	assert.Equal(t, 1, doubleRows[1].Period-doubleRows[0].Period)
	assertNoDoubleBooking(t, result.Entries)
}

func TestGenerateSpreadsLessonsAcrossDays(t *testing.T) {
	engine := NewEngine(DefaultWeights, nil)
	result, err := engine.Generate(context.Background(), Input{
		Requirements: []Requirement{
			{ClassID: "c1", SubjectID: "bio", SubjectName: "Biology", TeacherID: "t1", LessonsPerWeek: 4},
		},
		TimeSlots:   testSlots(6),
		WorkingDays: fiveDays(),
	}, Options{Seed: 1})
	require.NoError(t, err)

	days := make(map[int]int)
	for _, entry := range result.Entries {
		days[entry.Day]++
	}
	assert.Len(t, days, 4, "same-day penalty should place each lesson on its own day")
}

func TestGenerateDoubleNeverStraddlesBreak(t *testing.T) {
	engine := NewEngine(DefaultWeights, nil)
	result, err := engine.Generate(context.Background(), Input{
		Requirements: []Requirement{
			{ClassID: "c1", SubjectID: "chem", SubjectName: "Chemistry", TeacherID: "t1", LessonsPerWeek: 2, HasDoubleLesson: true},
		},
		TimeSlots:   testSlots(4, 2),
		WorkingDays: []string{"Monday"},
	}, Options{Seed: 3})
	require.NoError(t, err)

	require.Len(t, result.Placements, 1)
	assert.Equal(t, 0, result.Placements[0].Period)

	result, err = engine.Generate(context.Background(), Input{
		Requirements: []Requirement{
			{ClassID: "c1", SubjectID: "chem", SubjectName: "Chemistry", TeacherID: "t1", LessonsPerWeek: 2, HasDoubleLesson: true},
		},
		TimeSlots:   testSlots(3, 1),
		WorkingDays: []string{"Monday"},
	}, Options{Seed: 3})
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
	require.Len(t, result.Summary, 1)
	assert.Equal(t, 2, result.Summary[0].Unplaced)
	assert.Equal(t, 2, result.Summary[0].Total)
}

func TestGenerateReportsUnplacedWhenCapacityRunsOut(t *testing.T) {
	engine := NewEngine(DefaultWeights, nil)
	result, err := engine.Generate(context.Background(), Input{
		Requirements: []Requirement{
			{ClassID: "c1", ClassName: "X-A", SubjectID: "pe", SubjectName: "PE", TeacherID: "t1", LessonsPerWeek: 3},
		},
		TimeSlots:   testSlots(1),
		WorkingDays: []string{"Monday"},
	}, Options{Seed: 11, Attempts: 3})
	require.NoError(t, err)

	assert.False(t, result.Complete())
	assert.Len(t, result.Entries, 1)
	require.Len(t, result.Summary, 1)
	assert.Equal(t, UnplacedItem{
		Key:          "c1|pe|t1",
		ClassIDs:     []string{"c1"},
		ClassLabel:   "X-A",
		SubjectLabel: "PE",
		Unplaced:     2,
		Total:        3,
	}, result.Summary[0])
	assert.Equal(t, 2, result.UnplacedPeriods())
}

func TestGenerateHorizontalElectiveIsSynchronous(t *testing.T) {
	engine := NewEngine(DefaultWeights, nil)
	result, err := engine.Generate(context.Background(), Input{
		Requirements: []Requirement{
			{ClassID: "c1", SubjectID: "art", SubjectName: "Art", TeacherID: "t1", LessonsPerWeek: 3, HasDoubleLesson: true, ElectiveGroupID: "g1", ElectiveGroupName: "Arts"},
			{ClassID: "c2", SubjectID: "music", SubjectName: "Music", TeacherID: "t2", LessonsPerWeek: 3, HasDoubleLesson: true, ElectiveGroupID: "g1", ElectiveGroupName: "Arts"},
			{ClassID: "c1", SubjectID: "math", SubjectName: "Math", TeacherID: "t3", LessonsPerWeek: 4},
			{ClassID: "c2", SubjectID: "math", SubjectName: "Math", TeacherID: "t3", LessonsPerWeek: 4},
			{ClassID: "c2", SubjectID: "bio", SubjectName: "Biology", TeacherID: "t1", LessonsPerWeek: 2},
		},
		TimeSlots:   testSlots(6, 3),
		WorkingDays: fiveDays(),
	}, Options{Seed: 42, Attempts: 2})
	require.NoError(t, err)
	require.True(t, result.Complete())
	assertNoDoubleBooking(t, result.Entries)

	byPlacement := make(map[int][]Entry)
	for _, entry := range result.Entries {
		if entry.ElectiveGroupID == "g1" {
			byPlacement[entry.PlacementIndex] = append(byPlacement[entry.PlacementIndex], entry)
		}
	}
	require.Len(t, byPlacement, 2)
	for _, rows := range byPlacement {
		classes := make(map[string]bool)
		for _, row := range rows {
			classes[row.ClassID] = true
			assert.Equal(t, rows[0].Day, row.Day)
			assert.True(t, row.IsHorizontalElective)
		}
		assert.Len(t, classes, 2)
	}

	for _, entry := range result.Entries {
		if entry.ElectiveGroupID != "g1" {
			continue
		}
		require.Len(t, entry.Lessons, 1)
		if entry.ClassID == "c1" {
			assert.Equal(t, "Art", entry.Lessons[0].SubjectName)
		} else {
			assert.Equal(t, "Music", entry.Lessons[0].SubjectName)
		}
	}
}

func TestGenerateConservesWeeklyCounts(t *testing.T) {
	reqs := []Requirement{
		{ClassID: "c1", SubjectID: "math", SubjectName: "Math", TeacherID: "t1", LessonsPerWeek: 5, HasDoubleLesson: true},
		{ClassID: "c1", SubjectID: "eng", SubjectName: "English", TeacherID: "t2", LessonsPerWeek: 4},
		{ClassID: "c2", SubjectID: "math", SubjectName: "Math", TeacherID: "t1", LessonsPerWeek: 5, HasDoubleLesson: true},
		{ClassID: "c2", SubjectID: "eng", SubjectName: "English", TeacherID: "t2", LessonsPerWeek: 4},
		{ClassID: "c1", SubjectID: "fr", SubjectName: "French", TeacherID: "t3", LessonsPerWeek: 2, ElectiveGroupID: "lang"},
		{ClassID: "c1", SubjectID: "de", SubjectName: "German", TeacherID: "t4", LessonsPerWeek: 2, ElectiveGroupID: "lang"},
	}
	engine := NewEngine(DefaultWeights, nil)
	result, err := engine.Generate(context.Background(), Input{
		Requirements: reqs,
		TimeSlots:    testSlots(7, 3),
		WorkingDays:  fiveDays(),
	}, Options{Seed: 5, Attempts: 3})
	require.NoError(t, err)
	assertNoDoubleBooking(t, result.Entries)

	rows := make(map[string]int)
	for _, entry := range result.Entries {
		key := entry.ClassID + "|" + entry.SubjectID
		if entry.IsElective {
			key = entry.ClassID + "|" + entry.ElectiveGroupID
		}
		rows[key]++
	}
	unplaced := make(map[string]int)
	for _, item := range result.Summary {
		unplaced[item.Key] = item.Unplaced
	}
	assert.Equal(t, 5, rows["c1|math"]+unplaced["c1|math|t1"])
	assert.Equal(t, 4, rows["c2|eng"]+unplaced["c2|eng|t2"])
	assert.Equal(t, 2, rows["c1|lang"]+unplaced["lang"])
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	input := Input{
		Requirements: []Requirement{
			{ClassID: "c1", SubjectID: "math", SubjectName: "Math", TeacherID: "t1", LessonsPerWeek: 4, HasDoubleLesson: true},
			{ClassID: "c1", SubjectID: "eng", SubjectName: "English", TeacherID: "t2", LessonsPerWeek: 3},
			{ClassID: "c2", SubjectID: "eng", SubjectName: "English", TeacherID: "t2", LessonsPerWeek: 3},
		},
		TimeSlots:   testSlots(5),
		WorkingDays: fiveDays(),
	}
	engine := NewEngine(DefaultWeights, nil)
	first, err := engine.Generate(context.Background(), input, Options{Seed: 99, Attempts: 2})
	require.NoError(t, err)
	second, err := engine.Generate(context.Background(), input, Options{Seed: 99, Attempts: 2})
	require.NoError(t, err)

	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.Seed, second.Seed)
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	engine := NewEngine(DefaultWeights, nil)
	_, err := engine.Generate(context.Background(), Input{
		Requirements: []Requirement{{ClassID: "c1", SubjectID: "math", TeacherID: "t1", LessonsPerWeek: 1}},
		TimeSlots:    testSlots(2, 0, 1),
	}, Options{})
	assert.ErrorIs(t, err, ErrNoPeriods)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Generate(ctx, Input{
		Requirements: []Requirement{{ClassID: "c1", SubjectID: "math", TeacherID: "t1", LessonsPerWeek: 1}},
		TimeSlots:    testSlots(2),
	}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrderUnitsKeepsPriorityOrder(t *testing.T) {
	units, err := Decompose([]Requirement{
		{ClassID: "c1", SubjectID: "math", TeacherID: "t1", LessonsPerWeek: 4, HasDoubleLesson: true},
		{ClassID: "c1", SubjectID: "art", TeacherID: "t2", LessonsPerWeek: 2, ElectiveGroupID: "g"},
		{ClassID: "c2", SubjectID: "music", TeacherID: "t3", LessonsPerWeek: 2, ElectiveGroupID: "g"},
	})
	require.NoError(t, err)

	ordered := OrderUnits(units, rand.New(rand.NewSource(1)))
	require.Len(t, ordered, len(units))
	for i := 1; i < len(ordered); i++ {
		assert.GreaterOrEqual(t, ordered[i-1].Priority, ordered[i].Priority)
	}
	assert.True(t, ordered[0].Horizontal)
}

func TestNormalizeWorkingDays(t *testing.T) {
	assert.Equal(t, []string{"Monday", "Tuesday"}, NormalizeWorkingDays([]string{" monday", "TUESDAY", "Monday", ""}))
	assert.Equal(t, DefaultWorkingDays, NormalizeWorkingDays(nil))
}
