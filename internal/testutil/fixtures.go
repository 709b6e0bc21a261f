package testutil

import (
	"fmt"
	"time"

	"github.com/roach88/agenda/internal/ir"
)

// EventStart is midnight UTC on the first day of the fixture event.
var EventStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

// At returns the instant hh:mm on the given 1-based event day.
func At(day int, hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(fmt.Sprintf("testutil.At: %v", err))
	}
	return EventStart.AddDate(0, 0, day-1).Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

// DayKey returns the day-partition key used by fixture activities.
func DayKey(day int) string {
	return fmt.Sprintf("day-%d", day)
}

// Activity builds an optional activity on the given day.
func Activity(id string, day int, start, end string) ir.Activity {
	return ir.Activity{
		ID:        id,
		Name:      id,
		StartTime: At(day, start),
		EndTime:   At(day, end),
		Capacity:  100,
		DayKey:    DayKey(day),
	}
}

// Required marks an activity as globally mandatory.
func Required(a ir.Activity) ir.Activity {
	a.IsRequired = true
	return a
}

// RequiredFor marks an activity as mandatory for the given roles.
func RequiredFor(a ir.Activity, roles ...ir.ParticipantRole) ir.Activity {
	a.RequiredForRoles = roles
	return a
}

// Requires builds an activity-to-activity REQUIRES correlation.
func Requires(id, source, target string) ir.Correlation {
	return ir.Correlation{ID: id, Rule: ir.RuleRequires, SourceActivityID: source, TargetActivityID: target}
}

// Excludes builds an activity-to-activity EXCLUDES correlation.
func Excludes(id, source, target string) ir.Correlation {
	return ir.Correlation{ID: id, Rule: ir.RuleExcludes, SourceActivityID: source, TargetActivityID: target}
}

// RoleRule builds a role-level correlation (no target).
func RoleRule(id string, rule ir.RuleKind, source string, role ir.ParticipantRole) ir.Correlation {
	return ir.Correlation{ID: id, Rule: rule, SourceActivityID: source, Role: &role}
}

// ForRole restricts a correlation to one role.
func ForRole(c ir.Correlation, role ir.ParticipantRole) ir.Correlation {
	c.Role = &role
	return c
}

// AutoPickFor restricts REQUIRES auto-propagation to the given roles.
func AutoPickFor(c ir.Correlation, roles ...ir.ParticipantRole) ir.Correlation {
	c.AutoPickForRoles = roles
	return c
}

// FestivalCatalog is the reference catalog used across package tests.
// It mirrors compiler/testdata/catalog/catalog.cue.
//
//	Day 1: ceremony 09:00-10:00 (required), workshop_a 09:30-10:30,
//	       workshop_b 10:30-11:30, lunch 12:00-13:00,
//	       board_meeting 14:00-15:00 (PRESIDENT, TRESORIER)
//	Day 2: hike 08:00-12:00, gala 20:00-23:00
//
// Rules: workshop_a REQUIRES lunch; gala EXCLUDES hike; gala is mandatory
// for ALUMNI; board_meeting is forbidden for MEMBRE_JUNIOR.
func FestivalCatalog() *ir.Catalog {
	return &ir.Catalog{
		ActivityTypes: []ir.ActivityType{
			{ID: "opening", Name: "Opening", Day: "Day 1"},
			{ID: "workshop", Name: "Workshops", Day: "Day 1"},
			{ID: "meal", Name: "Meals", Day: "Day 1"},
			{ID: "board", Name: "Board", Day: "Day 1"},
			{ID: "social", Name: "Social", Day: "Day 2"},
		},
		Activities: []ir.Activity{
			withType(Required(Activity("ceremony", 1, "09:00", "10:00")), "opening", "Opening Ceremony"),
			withType(Activity("workshop_a", 1, "09:30", "10:30"), "workshop", "Workshop A"),
			withType(Activity("workshop_b", 1, "10:30", "11:30"), "workshop", "Workshop B"),
			withType(Activity("lunch", 1, "12:00", "13:00"), "meal", "Lunch"),
			withType(RequiredFor(Activity("board_meeting", 1, "14:00", "15:00"), ir.RolePresident, ir.RoleTresorier), "board", "Board Meeting"),
			withType(Activity("hike", 2, "08:00", "12:00"), "social", "Morning Hike"),
			withType(Activity("gala", 2, "20:00", "23:00"), "social", "Gala Dinner"),
		},
		Correlations: []ir.Correlation{
			Requires("workshop_lunch", "workshop_a", "lunch"),
			Excludes("gala_hike", "gala", "hike"),
			RoleRule("alumni_gala", ir.RuleAll, "gala", ir.RoleAlumni),
			RoleRule("junior_board", ir.RuleExcludes, "board_meeting", ir.RoleMembreJunior),
		},
	}
}

func withType(a ir.Activity, typeID, name string) ir.Activity {
	a.ActivityTypeID = typeID
	a.Name = name
	return a
}
