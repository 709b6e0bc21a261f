package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/agenda/internal/ir"
)

// timeLayout is the text encoding of every timestamp column. UTC with
// nanoseconds sorts lexically in time order.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(column, s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", column, err)
	}
	return t, nil
}

// marshalRoles encodes a role list as a JSON array. nil encodes as [].
func marshalRoles(roles []ir.ParticipantRole) (string, error) {
	if roles == nil {
		roles = []ir.ParticipantRole{}
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return "", fmt.Errorf("marshal roles: %w", err)
	}
	return string(data), nil
}

// unmarshalRoles decodes and re-validates a JSON role list. An empty list
// decodes as nil so round-tripped catalogs compare equal.
func unmarshalRoles(data string) ([]ir.ParticipantRole, error) {
	var tags []string
	if err := json.Unmarshal([]byte(data), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal roles: %w", err)
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return ir.ParseRoles(tags)
}

type activityTypeRow struct {
	ID       string `db:"id"`
	Position int    `db:"position"`
	Name     string `db:"name"`
	Day      string `db:"day"`
}

func (r activityTypeRow) toIR() ir.ActivityType {
	return ir.ActivityType{ID: r.ID, Name: r.Name, Day: r.Day}
}

type activityRow struct {
	ID               string `db:"id"`
	Position         int    `db:"position"`
	Name             string `db:"name"`
	Description      string `db:"description"`
	StartTime        string `db:"start_time"`
	EndTime          string `db:"end_time"`
	Capacity         int    `db:"capacity"`
	IsRequired       bool   `db:"is_required"`
	RequiredForRoles string `db:"required_for_roles"`
	ActivityTypeID   string `db:"activity_type_id"`
	DayKey           string `db:"day_key"`
}

func newActivityRow(pos int, a ir.Activity) (activityRow, error) {
	roles, err := marshalRoles(a.RequiredForRoles)
	if err != nil {
		return activityRow{}, err
	}
	return activityRow{
		ID:               a.ID,
		Position:         pos,
		Name:             a.Name,
		Description:      a.Description,
		StartTime:        formatTime(a.StartTime),
		EndTime:          formatTime(a.EndTime),
		Capacity:         a.Capacity,
		IsRequired:       a.IsRequired,
		RequiredForRoles: roles,
		ActivityTypeID:   a.ActivityTypeID,
		DayKey:           a.DayKey,
	}, nil
}

func (r activityRow) toIR() (ir.Activity, error) {
	start, err := parseTime("start_time", r.StartTime)
	if err != nil {
		return ir.Activity{}, err
	}
	end, err := parseTime("end_time", r.EndTime)
	if err != nil {
		return ir.Activity{}, err
	}
	roles, err := unmarshalRoles(r.RequiredForRoles)
	if err != nil {
		return ir.Activity{}, fmt.Errorf("activity %s: %w", r.ID, err)
	}
	return ir.Activity{
		ID:               r.ID,
		Name:             r.Name,
		Description:      r.Description,
		StartTime:        start,
		EndTime:          end,
		Capacity:         r.Capacity,
		IsRequired:       r.IsRequired,
		RequiredForRoles: roles,
		ActivityTypeID:   r.ActivityTypeID,
		DayKey:           r.DayKey,
	}, nil
}

type correlationRow struct {
	ID               string         `db:"id"`
	Position         int            `db:"position"`
	Rule             string         `db:"rule"`
	SourceActivityID string         `db:"source_activity_id"`
	TargetActivityID string         `db:"target_activity_id"`
	Role             sql.NullString `db:"role"`
	AutoPickForRoles string         `db:"auto_pick_for_roles"`
}

func newCorrelationRow(pos int, c ir.Correlation) (correlationRow, error) {
	autoPick, err := marshalRoles(c.AutoPickForRoles)
	if err != nil {
		return correlationRow{}, err
	}
	row := correlationRow{
		ID:               c.ID,
		Position:         pos,
		Rule:             string(c.Rule),
		SourceActivityID: c.SourceActivityID,
		TargetActivityID: c.TargetActivityID,
		AutoPickForRoles: autoPick,
	}
	if c.Role != nil {
		row.Role = sql.NullString{String: string(*c.Role), Valid: true}
	}
	return row, nil
}

func (r correlationRow) toIR() (ir.Correlation, error) {
	rule, err := ir.ParseRuleKind(r.Rule)
	if err != nil {
		return ir.Correlation{}, fmt.Errorf("correlation %s: %w", r.ID, err)
	}
	autoPick, err := unmarshalRoles(r.AutoPickForRoles)
	if err != nil {
		return ir.Correlation{}, fmt.Errorf("correlation %s: %w", r.ID, err)
	}
	c := ir.Correlation{
		ID:               r.ID,
		Rule:             rule,
		SourceActivityID: r.SourceActivityID,
		TargetActivityID: r.TargetActivityID,
		AutoPickForRoles: autoPick,
	}
	if r.Role.Valid {
		role, err := ir.ParseRole(r.Role.String)
		if err != nil {
			return ir.Correlation{}, fmt.Errorf("correlation %s: %w", r.ID, err)
		}
		c.Role = &role
	}
	return c, nil
}

type participantRow struct {
	ID   string `db:"id"`
	Role string `db:"role"`
	Name string `db:"name"`
}

func (r participantRow) toIR() (ir.Participant, error) {
	role, err := ir.ParseRole(r.Role)
	if err != nil {
		return ir.Participant{}, fmt.Errorf("participant %s: %w", r.ID, err)
	}
	return ir.Participant{ID: r.ID, Role: role, Name: r.Name}, nil
}

type selectionRow struct {
	Seq           int64  `db:"seq"`
	ID            string `db:"id"`
	ParticipantID string `db:"participant_id"`
	ActivityID    string `db:"activity_id"`
	EnrolledAt    string `db:"enrolled_at"`
}

func (r selectionRow) toIR() (ir.Selection, error) {
	at, err := parseTime("enrolled_at", r.EnrolledAt)
	if err != nil {
		return ir.Selection{}, err
	}
	return ir.Selection{
		ID:            r.ID,
		ParticipantID: r.ParticipantID,
		ActivityID:    r.ActivityID,
		Seq:           r.Seq,
		EnrolledAt:    at,
	}, nil
}
