package scheduler

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Priority tiers, hardest to place first.
const (
	tierRegularSingle      = 1
	tierVerticalElective   = 2
	tierRegularDouble      = 3
	tierHorizontalElective = 4
)

// Decompose turns requirements into priority-tagged placement units.
func Decompose(reqs []Requirement) ([]PlacementUnit, error) {
	if err := validateRequirements(reqs); err != nil {
		return nil, err
	}

	electives := lo.Filter(reqs, func(r Requirement, _ int) bool { return r.ElectiveGroupID != "" })
	regular := lo.Filter(reqs, func(r Requirement, _ int) bool { return r.ElectiveGroupID == "" })

	units := make([]PlacementUnit, 0, len(reqs)*2)

	groups := lo.GroupBy(electives, func(r Requirement) string { return r.ElectiveGroupID })
	groupOrder := lo.Uniq(lo.Map(electives, func(r Requirement, _ int) string { return r.ElectiveGroupID }))
	for _, groupID := range groupOrder {
		groupUnits, err := electiveUnits(groupID, groups[groupID])
		if err != nil {
			return nil, err
		}
		units = append(units, groupUnits...)
	}

	for _, req := range regular {
		doubles, singles := splitWeekly(req.LessonsPerWeek, req.HasDoubleLesson)
		base := PlacementUnit{
			Key:          req.SubjectID,
			Requirements: []Requirement{req},
			ClassIDs:     []string{req.ClassID},
			TeacherIDs:   []string{req.TeacherID},
			WeeklyCount:  req.LessonsPerWeek,
			DisplayName:  req.SubjectName,
		}
		for i := 0; i < doubles; i++ {
			unit := base
			unit.Kind = UnitDouble
			unit.Duration = 2
			unit.Priority = priority(tierRegularDouble, 2)
			units = append(units, unit)
		}
		for i := 0; i < singles; i++ {
			unit := base
			unit.Kind = UnitSingle
			unit.Duration = 1
			unit.Priority = priority(tierRegularSingle, 1)
			units = append(units, unit)
		}
	}
	return units, nil
}

func electiveUnits(groupID string, members []Requirement) ([]PlacementUnit, error) {
	first := members[0]
	teachers := make(map[string]bool, len(members))
	for _, member := range members {
		if member.LessonsPerWeek != first.LessonsPerWeek || member.HasDoubleLesson != first.HasDoubleLesson {
			return nil, fmt.Errorf("%w: group %s members disagree on lessons per week or double lesson", ErrInconsistentElectiveGroup, groupLabel(first))
		}
		if teachers[member.TeacherID] {
			return nil, fmt.Errorf("%w: teacher %s appears more than once in group %s", ErrInconsistentElectiveGroup, member.TeacherID, groupLabel(first))
		}
		teachers[member.TeacherID] = true
	}

	classIDs := lo.Uniq(lo.Map(members, func(r Requirement, _ int) string { return r.ClassID }))
	teacherIDs := lo.Uniq(lo.Map(members, func(r Requirement, _ int) string { return r.TeacherID }))
	subjectNames := lo.Uniq(lo.Map(members, func(r Requirement, _ int) string { return r.SubjectName }))
	horizontal := len(classIDs) > 1
	tier := tierVerticalElective
	if horizontal {
		tier = tierHorizontalElective
	}

	base := PlacementUnit{
		Key:          groupID,
		Requirements: members,
		ClassIDs:     classIDs,
		TeacherIDs:   teacherIDs,
		Horizontal:   horizontal,
		WeeklyCount:  first.LessonsPerWeek,
		DisplayName:  strings.Join(subjectNames, " / "),
	}

	doubles, singles := splitWeekly(first.LessonsPerWeek, first.HasDoubleLesson)
	units := make([]PlacementUnit, 0, doubles+singles)
	for i := 0; i < doubles; i++ {
		unit := base
		unit.Kind = UnitElectiveDouble
		unit.Duration = 2
		unit.Priority = priority(tier, 2)
		units = append(units, unit)
	}
	for i := 0; i < singles; i++ {
		unit := base
		unit.Kind = UnitElectiveSingle
		unit.Duration = 1
		unit.Priority = priority(tier, 1)
		units = append(units, unit)
	}
	return units, nil
}

func validateRequirements(reqs []Requirement) error {
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if req.ClassID == "" || req.SubjectID == "" || req.TeacherID == "" {
			return fmt.Errorf("%w: class, subject and teacher are required", ErrInvalidRequirement)
		}
		if req.LessonsPerWeek < 1 {
			return fmt.Errorf("%w: %s for class %s needs at least one lesson per week", ErrInvalidRequirement, req.SubjectID, req.ClassID)
		}
		key := req.ClassID + "|" + req.SubjectID + "|" + req.TeacherID
		if seen[key] {
			return fmt.Errorf("%w: %s taught by %s to class %s", ErrDuplicateRequirement, req.SubjectID, req.TeacherID, req.ClassID)
		}
		seen[key] = true
	}
	return nil
}

// splitWeekly emits one double when eligible and singles for the remainder.
func splitWeekly(count int, hasDouble bool) (doubles, singles int) {
	if hasDouble && count >= 2 {
		return 1, count - 2
	}
	return 0, count
}

func priority(tier, duration int) int {
	return tier*10 + duration
}

func groupLabel(r Requirement) string {
	if r.ElectiveGroupName != "" {
		return r.ElectiveGroupName
	}
	return r.ElectiveGroupID
}
