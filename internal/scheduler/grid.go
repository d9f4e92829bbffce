package scheduler

// ResourceKind names the dimension of a clash.
type ResourceKind string

const (
	ResourceClass   ResourceKind = "CLASS"
	ResourceTeacher ResourceKind = "TEACHER"
)

// Conflict reports an occupied class or teacher.
type Conflict struct {
	Resource ResourceKind
	ID       string
	Day      int
	Period   int
}

// Grid tracks class and teacher occupancy over day × period.
type Grid struct {
	days        int
	slots       []TimeSlot
	classBusy   map[string][][]bool
	teacherBusy map[string][][]bool
}

// NewGrid builds an empty occupancy grid. Periods index into slots, breaks included.
func NewGrid(days int, slots []TimeSlot) *Grid {
	return &Grid{
		days:        days,
		slots:       slots,
		classBusy:   make(map[string][][]bool),
		teacherBusy: make(map[string][][]bool),
	}
}

// Days returns the number of working days.
func (g *Grid) Days() int { return g.days }

// Periods returns the number of ordered slots per day, breaks included.
func (g *Grid) Periods() int { return len(g.slots) }

// Slot returns the timeslot at the period index.
func (g *Grid) Slot(period int) TimeSlot { return g.slots[period] }

// IsBreak reports whether the period is a break or outside the day.
func (g *Grid) IsBreak(period int) bool {
	if period < 0 || period >= len(g.slots) {
		return true
	}
	return g.slots[period].IsBreak
}

// Contiguous reports whether duration periods starting at period are all in range and non-break.
func (g *Grid) Contiguous(period, duration int) bool {
	if duration < 1 {
		return false
	}
	for p := period; p < period+duration; p++ {
		if g.IsBreak(p) {
			return false
		}
	}
	return true
}

// PeriodOf returns the period index of a timeslot id.
func (g *Grid) PeriodOf(timeSlotID string) (int, bool) {
	for idx, slot := range g.slots {
		if slot.ID == timeSlotID {
			return idx, true
		}
	}
	return 0, false
}

// IsFree is true iff every class and teacher is free for duration contiguous non-break periods.
func (g *Grid) IsFree(classIDs, teacherIDs []string, day, period, duration int) bool {
	if day < 0 || day >= g.days || !g.Contiguous(period, duration) {
		return false
	}
	for p := period; p < period+duration; p++ {
		for _, id := range classIDs {
			if busy(g.classBusy, id, day, p) {
				return false
			}
		}
		for _, id := range teacherIDs {
			if busy(g.teacherBusy, id, day, p) {
				return false
			}
		}
	}
	return true
}

// Conflicts lists every occupied resource in the requested window.
func (g *Grid) Conflicts(classIDs, teacherIDs []string, day, period, duration int) []Conflict {
	var conflicts []Conflict
	for p := period; p < period+duration; p++ {
		for _, id := range classIDs {
			if busy(g.classBusy, id, day, p) {
				conflicts = append(conflicts, Conflict{Resource: ResourceClass, ID: id, Day: day, Period: p})
			}
		}
		for _, id := range teacherIDs {
			if busy(g.teacherBusy, id, day, p) {
				conflicts = append(conflicts, Conflict{Resource: ResourceTeacher, ID: id, Day: day, Period: p})
			}
		}
	}
	return conflicts
}

// Reserve marks all classes and teachers busy for the window.
func (g *Grid) Reserve(classIDs, teacherIDs []string, day, period, duration int) {
	g.mark(classIDs, teacherIDs, day, period, duration, true)
}

// Release frees all classes and teachers for the window.
func (g *Grid) Release(classIDs, teacherIDs []string, day, period, duration int) {
	g.mark(classIDs, teacherIDs, day, period, duration, false)
}

// ClassLoad counts the occupied periods of a class on a day.
func (g *Grid) ClassLoad(classID string, day int) int {
	rows, ok := g.classBusy[classID]
	if !ok || day < 0 || day >= g.days {
		return 0
	}
	count := 0
	for _, occupied := range rows[day] {
		if occupied {
			count++
		}
	}
	return count
}

// TeacherBusy reports whether the teacher is occupied at the day/period.
func (g *Grid) TeacherBusy(teacherID string, day, period int) bool {
	return busy(g.teacherBusy, teacherID, day, period)
}

// ClassBusy reports whether the class is occupied at the day/period.
func (g *Grid) ClassBusy(classID string, day, period int) bool {
	return busy(g.classBusy, classID, day, period)
}

func (g *Grid) mark(classIDs, teacherIDs []string, day, period, duration int, value bool) {
	if day < 0 || day >= g.days {
		return
	}
	for p := period; p < period+duration && p < len(g.slots); p++ {
		if p < 0 {
			continue
		}
		for _, id := range classIDs {
			g.row(g.classBusy, id)[day][p] = value
		}
		for _, id := range teacherIDs {
			g.row(g.teacherBusy, id)[day][p] = value
		}
	}
}

func (g *Grid) row(table map[string][][]bool, id string) [][]bool {
	rows, ok := table[id]
	if !ok {
		rows = make([][]bool, g.days)
		for d := range rows {
			rows[d] = make([]bool, len(g.slots))
		}
		table[id] = rows
	}
	return rows
}

func busy(table map[string][][]bool, id string, day, period int) bool {
	rows, ok := table[id]
	if !ok || day < 0 || day >= len(rows) || period < 0 || period >= len(rows[day]) {
		return false
	}
	return rows[day][period]
}
