package ir

import (
	"fmt"
	"time"
)

// RuleKind is the kind of a correlation rule.
type RuleKind string

const (
	// RuleRequires makes the source require the target, or makes the
	// source mandatory when no target is set.
	RuleRequires RuleKind = "REQUIRES"

	// RuleExcludes forbids selecting source and target together, or forbids
	// the source outright when no target is set.
	RuleExcludes RuleKind = "EXCLUDES"

	// RuleAll behaves like RuleRequires, but its targets are never
	// auto-picked.
	RuleAll RuleKind = "ALL"
)

// ParseRuleKind converts a rule tag to a RuleKind.
func ParseRuleKind(s string) (RuleKind, error) {
	switch k := RuleKind(s); k {
	case RuleRequires, RuleExcludes, RuleAll:
		return k, nil
	}
	return "", fmt.Errorf("unknown correlation rule %q", s)
}

// Implies reports whether the rule adds obligations (REQUIRES or ALL).
func (k RuleKind) Implies() bool {
	return k == RuleRequires || k == RuleAll
}

// ActivityType is a scheduling slot family. Its Day is the source of the
// day-partition key of every activity of that type.
type ActivityType struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	Day  string `json:"day,omitempty"`
}

// Activity is a timed catalog entry a participant can select.
// Activities are immutable for the duration of a selection operation.
type Activity struct {
	ID               string            `json:"id" validate:"required"`
	Name             string            `json:"name" validate:"required"`
	Description      string            `json:"description,omitempty"`
	StartTime        time.Time         `json:"start_time" validate:"required"`
	EndTime          time.Time         `json:"end_time" validate:"required,gtfield=StartTime"`
	Capacity         int               `json:"capacity" validate:"gte=0"`
	IsRequired       bool              `json:"is_required"`
	RequiredForRoles []ParticipantRole `json:"required_for_roles,omitempty" validate:"dive,participant_role"`
	ActivityTypeID   string            `json:"activity_type_id,omitempty"`
	DayKey           string            `json:"day_key" validate:"required"`
}

// ConflictsWith reports whether two activities collide: same day-partition
// and overlapping windows. Windows are half-open, so an activity ending at
// 10:00 does not collide with one starting at 10:00.
func (a Activity) ConflictsWith(b Activity) bool {
	if a.DayKey != b.DayKey {
		return false
	}
	return a.StartTime.Before(b.EndTime) && a.EndTime.After(b.StartTime)
}

// Correlation is a declared rule between two activities, or between a role
// and one activity when TargetActivityID is empty.
type Correlation struct {
	ID               string            `json:"id" validate:"required"`
	Rule             RuleKind          `json:"rule" validate:"required,oneof=REQUIRES EXCLUDES ALL"`
	SourceActivityID string            `json:"source_activity_id" validate:"required"`
	TargetActivityID string            `json:"target_activity_id,omitempty"`
	Role             *ParticipantRole  `json:"role,omitempty" validate:"omitempty,participant_role"`
	AutoPickForRoles []ParticipantRole `json:"auto_pick_for_roles,omitempty" validate:"dive,participant_role"`
}

// IsRoleLevel reports whether the correlation constrains its source alone.
func (c Correlation) IsRoleLevel() bool {
	return c.TargetActivityID == ""
}

// Touches reports whether activityID is the source or target of c.
func (c Correlation) Touches(activityID string) bool {
	return c.SourceActivityID == activityID || c.TargetActivityID == activityID
}

// Other returns the opposite end of an activity-to-activity correlation.
func (c Correlation) Other(activityID string) string {
	if c.SourceActivityID == activityID {
		return c.TargetActivityID
	}
	return c.SourceActivityID
}

// Participant is the subject of every selection operation.
type Participant struct {
	ID   string          `json:"id" validate:"required"`
	Role ParticipantRole `json:"role" validate:"required,participant_role"`
	Name string          `json:"name,omitempty"`
}

// Selection is a participant's claim on one activity.
// Seq orders selections by enrolment; it is assigned by the store.
type Selection struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	ActivityID    string    `json:"activity_id"`
	Seq           int64     `json:"seq"`
	EnrolledAt    time.Time `json:"enrolled_at"`
}

// Catalog is a full snapshot of activity types, activities and correlations.
type Catalog struct {
	ActivityTypes []ActivityType `json:"activity_types"`
	Activities    []Activity     `json:"activities"`
	Correlations  []Correlation  `json:"correlations"`
}

// Activity returns the activity with the given id.
func (c *Catalog) Activity(id string) (Activity, bool) {
	for _, a := range c.Activities {
		if a.ID == id {
			return a, true
		}
	}
	return Activity{}, false
}

// ActivityIDs returns activity ids in catalog order.
func (c *Catalog) ActivityIDs() []string {
	ids := make([]string, len(c.Activities))
	for i, a := range c.Activities {
		ids[i] = a.ID
	}
	return ids
}
