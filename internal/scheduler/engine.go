package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Options controls a generation run.
type Options struct {
	Seed     int64
	Attempts int
}

// Engine runs greedy, score-driven placement over decomposed units.
type Engine struct {
	weights Weights
	logger  *zap.Logger
}

// NewEngine builds an engine with the provided weights.
func NewEngine(weights Weights, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	return &Engine{weights: weights, logger: logger}
}

// Weights returns the scoring profile in use.
func (e *Engine) Weights() Weights { return e.weights }

// Generate decomposes the input and runs Attempts placement passes with seeds Seed, Seed+1, ...
// The result with the fewest unplaced periods (then the highest score) wins.
func (e *Engine) Generate(ctx context.Context, in Input, opts Options) (*Result, error) {
	days := NormalizeWorkingDays(in.WorkingDays)
	if !lo.SomeBy(in.TimeSlots, func(slot TimeSlot) bool { return !slot.IsBreak }) {
		return nil, fmt.Errorf("%w: at least one non-break timeslot is required", ErrNoPeriods)
	}

	units, err := Decompose(in.Requirements)
	if err != nil {
		return nil, err
	}

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var best *Result
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seed := opts.Seed + int64(attempt)
		grid := NewGrid(len(days), in.TimeSlots)
		result := e.Place(units, grid, rand.New(rand.NewSource(seed)))
		result.Seed = seed
		result.Attempt = attempt + 1
		result.WorkingDays = days
		result.TimeSlots = in.TimeSlots

		e.logger.Debug("timetable attempt finished",
			zap.Int("attempt", result.Attempt),
			zap.Int64("seed", seed),
			zap.Int("unplaced_periods", result.UnplacedPeriods()),
			zap.Int("score", result.Score),
		)
		if best == nil || better(result, best) {
			best = result
		}
	}

	e.logger.Info("timetable generated",
		zap.Int("units", best.UnitsTotal),
		zap.Int("placed", len(best.Placements)),
		zap.Int("unplaced", len(best.Unplaced)),
		zap.Int("attempts", attempts),
		zap.Int64("seed", best.Seed),
	)
	return best, nil
}

// Place runs one greedy pass: shuffle, stable priority sort, then best slot per unit.
// A unit without a feasible slot is recorded as unplaced and never retried.
func (e *Engine) Place(units []PlacementUnit, grid *Grid, rng *rand.Rand) *Result {
	state := newSearchState(grid, e.weights)
	ordered := OrderUnits(units, rng)

	result := &Result{UnitsTotal: len(ordered)}
	for _, unit := range ordered {
		candidate, ok := state.bestSlot(unit, rng)
		if !ok {
			result.Unplaced = append(result.Unplaced, unit)
			e.logger.Debug("unit left unplaced",
				zap.String("kind", unit.Kind.String()),
				zap.String("key", unit.Key),
				zap.Strings("classes", unit.ClassIDs),
			)
			continue
		}
		state.commit(unit, candidate.Day, candidate.Period)
		result.Placements = append(result.Placements, Placement{
			Unit:   unit,
			Day:    candidate.Day,
			Period: candidate.Period,
			Score:  candidate.Score,
		})
		result.Score += candidate.Score
	}

	result.Entries = buildEntries(result.Placements, grid)
	result.Summary = summarizeUnplaced(result.Unplaced)
	return result
}

// OrderUnits shuffles with rng and then stable-sorts by descending priority.
func OrderUnits(units []PlacementUnit, rng *rand.Rand) []PlacementUnit {
	ordered := make([]PlacementUnit, len(units))
	copy(ordered, units)
	if rng != nil {
		rng.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return ordered
}

func better(candidate, current *Result) bool {
	if candidate.UnplacedPeriods() != current.UnplacedPeriods() {
		return candidate.UnplacedPeriods() < current.UnplacedPeriods()
	}
	return candidate.Score > current.Score
}

func buildEntries(placements []Placement, grid *Grid) []Entry {
	var entries []Entry
	for idx, placement := range placements {
		unit := placement.Unit
		for _, classID := range unit.ClassIDs {
			lessons := make([]LessonContent, 0, len(unit.Requirements))
			var teacherIDs, teacherNames []string
			for _, req := range unit.Requirements {
				if req.ClassID != classID {
					continue
				}
				lessons = append(lessons, LessonContent{
					RequirementID: req.ID,
					SubjectID:     req.SubjectID,
					SubjectName:   req.SubjectName,
					TeacherID:     req.TeacherID,
					TeacherName:   req.TeacherName,
				})
				teacherIDs = append(teacherIDs, req.TeacherID)
				teacherNames = append(teacherNames, req.TeacherName)
			}
			teacherIDs = lo.Uniq(teacherIDs)

			for offset := 0; offset < unit.Duration; offset++ {
				period := placement.Period + offset
				entry := Entry{
					PlacementIndex:       idx,
					ClassID:              classID,
					Day:                  placement.Day,
					Period:               period,
					TimeSlotID:           grid.Slot(period).ID,
					DisplayName:          unit.DisplayName,
					TeacherDisplayName:   strings.Join(lo.Uniq(teacherNames), ", "),
					TeacherIDs:           teacherIDs,
					Lessons:              lessons,
					IsDouble:             unit.Duration > 1,
					IsElective:           unit.Kind.IsElective(),
					IsHorizontalElective: unit.Horizontal,
				}
				if unit.Kind.IsElective() {
					entry.ElectiveGroupID = unit.Key
				} else {
					entry.SubjectID = unit.Requirements[0].SubjectID
				}
				entries = append(entries, entry)
			}
		}
	}
	return entries
}

func summarizeUnplaced(units []PlacementUnit) []UnplacedItem {
	index := make(map[string]int)
	var items []UnplacedItem
	for _, unit := range units {
		key := unit.Key
		if !unit.Kind.IsElective() {
			key = unit.Requirements[0].key()
		}
		pos, ok := index[key]
		if !ok {
			item := UnplacedItem{
				Key:      key,
				ClassIDs: unit.ClassIDs,
				Total:    unit.WeeklyCount,
			}
			first := unit.Requirements[0]
			switch {
			case unit.Kind.IsElective():
				item.SubjectLabel = "Elective: " + groupLabel(first)
				item.ClassLabel = first.ClassName
				if unit.Horizontal {
					item.ClassLabel = "All Classes"
				}
			default:
				item.SubjectLabel = first.SubjectName
				item.ClassLabel = first.ClassName
			}
			items = append(items, item)
			pos = len(items) - 1
			index[key] = pos
		}
		items[pos].Unplaced += unit.Duration
	}
	return items
}
