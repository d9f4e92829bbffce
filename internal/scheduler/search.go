package scheduler

import "math/rand"

// Weights tunes the soft-constraint heuristic. Higher scores win.
type Weights struct {
	Base            int `json:"base"`
	SameDayHeavy    int `json:"sameDayHeavy"`
	SameDayLight    int `json:"sameDayLight"`
	DayLoad         int `json:"dayLoad"`
	TeacherAdjacent int `json:"teacherAdjacent"`
	TeacherGap      int `json:"teacherGap"`
	DoubleCollision int `json:"doubleCollision"`
}

// DefaultWeights is the production scoring profile.
var DefaultWeights = Weights{
	Base:            100,
	SameDayHeavy:    50,
	SameDayLight:    15,
	DayLoad:         1,
	TeacherAdjacent: 5,
	TeacherGap:      3,
	DoubleCollision: 200,
}

// Candidate is a hard-feasible slot with its score.
type Candidate struct {
	Day    int
	Period int
	Score  int
}

type occurrenceKey struct {
	ClassID string
	Day     int
	Key     string
}

type slotKey struct {
	Day    int
	Period int
}

type doubleMark struct {
	ClassID     string
	SubjectName string
}

// searchState is the per-run scheduling state shared by slot search and placement.
type searchState struct {
	grid        *Grid
	weights     Weights
	occurrences map[occurrenceKey]int
	doubles     map[slotKey][]doubleMark
}

func newSearchState(grid *Grid, weights Weights) *searchState {
	return &searchState{
		grid:        grid,
		weights:     weights,
		occurrences: make(map[occurrenceKey]int),
		doubles:     make(map[slotKey][]doubleMark),
	}
}

// bestSlot scans every day/period and keeps the highest scoring feasible start.
// Equal scores are resolved uniformly at random.
func (s *searchState) bestSlot(unit PlacementUnit, rng *rand.Rand) (Candidate, bool) {
	var (
		best  Candidate
		found bool
		ties  int
	)
	for day := 0; day < s.grid.Days(); day++ {
		for period := 0; period < s.grid.Periods(); period++ {
			if !s.grid.IsFree(unit.ClassIDs, unit.TeacherIDs, day, period, unit.Duration) {
				continue
			}
			score := s.score(unit, day, period)
			switch {
			case !found || score > best.Score:
				best = Candidate{Day: day, Period: period, Score: score}
				found = true
				ties = 1
			case score == best.Score:
				ties++
				if rng != nil && rng.Intn(ties) == 0 {
					best = Candidate{Day: day, Period: period, Score: score}
				}
			}
		}
	}
	return best, found
}

func (s *searchState) score(unit PlacementUnit, day, period int) int {
	w := s.weights
	score := w.Base

	for _, classID := range unit.ClassIDs {
		existing := s.occurrences[occurrenceKey{ClassID: classID, Day: day, Key: unit.Key}]
		if unit.WeeklyCount <= s.grid.Days() {
			score -= existing * w.SameDayHeavy
		} else if existing >= 2 {
			score -= (existing - 1) * w.SameDayLight
		}
		load := s.grid.ClassLoad(classID, day)
		score -= w.DayLoad * load * load
	}

	for _, teacherID := range unit.TeacherIDs {
		score -= s.fatigue(teacherID, day, period, unit.Duration)
	}

	if s.collidesWithDouble(unit, day, period) {
		score -= w.DoubleCollision
	}
	return score
}

func (s *searchState) fatigue(teacherID string, day, period, duration int) int {
	penalty := 0
	for _, edge := range []struct{ at, dir int }{{period - 1, -1}, {period + duration, 1}} {
		switch {
		case s.teacherTeaching(teacherID, day, edge.at):
			penalty += s.weights.TeacherAdjacent
		case !s.grid.IsBreak(edge.at) && s.teacherTeaching(teacherID, day, edge.at+edge.dir):
			// the free period at edge.at would be left as an isolated gap
			penalty += s.weights.TeacherGap
		}
	}
	return penalty
}

func (s *searchState) teacherTeaching(teacherID string, day, period int) bool {
	if s.grid.IsBreak(period) {
		return false
	}
	return s.grid.TeacherBusy(teacherID, day, period)
}

func (s *searchState) collidesWithDouble(unit PlacementUnit, day, period int) bool {
	own := make(map[string]bool, len(unit.ClassIDs))
	for _, id := range unit.ClassIDs {
		own[id] = true
	}
	names := make(map[string]bool, len(unit.Requirements))
	for _, name := range unit.subjectNames() {
		names[name] = true
	}
	for p := period; p < period+unit.Duration; p++ {
		for _, mark := range s.doubles[slotKey{Day: day, Period: p}] {
			if !own[mark.ClassID] && names[mark.SubjectName] {
				return true
			}
		}
	}
	return false
}

// commit reserves the slot and updates the bookkeeping used by scoring.
func (s *searchState) commit(unit PlacementUnit, day, period int) {
	s.grid.Reserve(unit.ClassIDs, unit.TeacherIDs, day, period, unit.Duration)
	for _, classID := range unit.ClassIDs {
		s.occurrences[occurrenceKey{ClassID: classID, Day: day, Key: unit.Key}]++
	}
	if unit.Duration < 2 {
		return
	}
	for _, req := range unit.Requirements {
		for p := period; p < period+unit.Duration; p++ {
			key := slotKey{Day: day, Period: p}
			s.doubles[key] = append(s.doubles[key], doubleMark{ClassID: req.ClassID, SubjectName: req.SubjectName})
		}
	}
}
