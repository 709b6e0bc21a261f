package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/logger"
)

// Repository is the persistence surface the selection engine depends on.
// *Store and *Tx both implement it.
type Repository interface {
	GetParticipant(ctx context.Context, id string) (ir.Participant, error)
	ListActivities(ctx context.Context) ([]ir.Activity, error)
	GetActivity(ctx context.Context, id string) (ir.Activity, error)
	ListCorrelations(ctx context.Context, filter CorrelationFilter) ([]ir.Correlation, error)
	ListSelections(ctx context.Context, participantID string) ([]ir.Selection, error)
	FindSelection(ctx context.Context, participantID, activityID string) (ir.Selection, bool, error)
	CreateSelection(ctx context.Context, sel ir.Selection) (ir.Selection, error)
	DeleteSelection(ctx context.Context, selectionID string) error

	// InTx runs fn against a Repository bound to one transaction.
	InTx(ctx context.Context, fn func(Repository) error) error
}

// CorrelationFilter narrows ListCorrelations. The zero value returns every
// correlation.
type CorrelationFilter struct {
	// ActivityID keeps correlations whose source or target is this activity.
	ActivityID string
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*Tx)(nil)
)

// conn holds the query methods shared by Store and Tx.
type conn struct {
	q   sqlx.ExtContext
	log *logger.Logger
}

// GetParticipant returns the participant with the given id.
func (c conn) GetParticipant(ctx context.Context, id string) (ir.Participant, error) {
	var row participantRow
	err := sqlx.GetContext(ctx, c.q, &row, `SELECT id, role, name FROM participants WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Participant{}, fmt.Errorf("participant %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return row.toIR()
}

// ListParticipants returns all participants ordered by id.
func (c conn) ListParticipants(ctx context.Context) ([]ir.Participant, error) {
	var rows []participantRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, `SELECT id, role, name FROM participants ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]ir.Participant, 0, len(rows))
	for _, r := range rows {
		p, err := r.toIR()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SaveParticipant inserts a participant or updates its role and name.
// Existing selections are kept.
func (c conn) SaveParticipant(ctx context.Context, p ir.Participant) error {
	_, err := sqlx.NamedExecContext(ctx, c.q, `
		INSERT INTO participants (id, role, name)
		VALUES (:id, :role, :name)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role, name = excluded.name
	`, participantRow{ID: p.ID, Role: string(p.Role), Name: p.Name})
	if err != nil {
		return fmt.Errorf("save participant: %w", err)
	}
	return nil
}

// ListActivityTypes returns activity types in catalog order.
func (c conn) ListActivityTypes(ctx context.Context) ([]ir.ActivityType, error) {
	var rows []activityTypeRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, `
		SELECT id, position, name, day FROM activity_types
		ORDER BY position ASC, id COLLATE BINARY ASC
	`); err != nil {
		return nil, fmt.Errorf("list activity types: %w", err)
	}
	out := make([]ir.ActivityType, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toIR())
	}
	return out, nil
}

const activityColumns = `id, position, name, description, start_time, end_time, capacity,
	is_required, required_for_roles, activity_type_id, day_key`

// ListActivities returns the activity catalog in declaration order.
func (c conn) ListActivities(ctx context.Context) ([]ir.Activity, error) {
	var rows []activityRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, `
		SELECT `+activityColumns+` FROM activities
		ORDER BY position ASC, id COLLATE BINARY ASC
	`); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	out := make([]ir.Activity, 0, len(rows))
	for _, r := range rows {
		a, err := r.toIR()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// GetActivity returns one activity.
func (c conn) GetActivity(ctx context.Context, id string) (ir.Activity, error) {
	var row activityRow
	err := sqlx.GetContext(ctx, c.q, &row, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Activity{}, fmt.Errorf("activity %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Activity{}, fmt.Errorf("get activity: %w", err)
	}
	return row.toIR()
}

// ListCorrelations returns correlations in declaration order.
func (c conn) ListCorrelations(ctx context.Context, filter CorrelationFilter) ([]ir.Correlation, error) {
	query := `
		SELECT id, position, rule, source_activity_id, target_activity_id, role, auto_pick_for_roles
		FROM correlations`
	var args []any
	if filter.ActivityID != "" {
		query += ` WHERE source_activity_id = ? OR target_activity_id = ?`
		args = append(args, filter.ActivityID, filter.ActivityID)
	}
	query += ` ORDER BY position ASC, id COLLATE BINARY ASC`

	var rows []correlationRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list correlations: %w", err)
	}
	out := make([]ir.Correlation, 0, len(rows))
	for _, r := range rows {
		corr, err := r.toIR()
		if err != nil {
			return nil, err
		}
		out = append(out, corr)
	}
	return out, nil
}

// LoadCatalog reads the whole catalog back.
func (c conn) LoadCatalog(ctx context.Context) (*ir.Catalog, error) {
	types, err := c.ListActivityTypes(ctx)
	if err != nil {
		return nil, err
	}
	activities, err := c.ListActivities(ctx)
	if err != nil {
		return nil, err
	}
	correlations, err := c.ListCorrelations(ctx, CorrelationFilter{})
	if err != nil {
		return nil, err
	}
	return &ir.Catalog{ActivityTypes: types, Activities: activities, Correlations: correlations}, nil
}

const selectionColumns = `seq, id, participant_id, activity_id, enrolled_at`

// ListSelections returns a participant's selections in enrolment order.
// Returns an empty slice (not nil) when there are none.
func (c conn) ListSelections(ctx context.Context, participantID string) ([]ir.Selection, error) {
	var rows []selectionRow
	if err := sqlx.SelectContext(ctx, c.q, &rows, `
		SELECT `+selectionColumns+` FROM selections
		WHERE participant_id = ?
		ORDER BY seq ASC
	`, participantID); err != nil {
		return nil, fmt.Errorf("list selections: %w", err)
	}
	out := make([]ir.Selection, 0, len(rows))
	for _, r := range rows {
		sel, err := r.toIR()
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

// FindSelection looks up the selection of one activity by one participant.
func (c conn) FindSelection(ctx context.Context, participantID, activityID string) (ir.Selection, bool, error) {
	var row selectionRow
	err := sqlx.GetContext(ctx, c.q, &row, `
		SELECT `+selectionColumns+` FROM selections
		WHERE participant_id = ? AND activity_id = ?
	`, participantID, activityID)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Selection{}, false, nil
	}
	if err != nil {
		return ir.Selection{}, false, fmt.Errorf("find selection: %w", err)
	}
	sel, err := row.toIR()
	if err != nil {
		return ir.Selection{}, false, err
	}
	return sel, true, nil
}

// CreateSelection inserts a selection and returns it with its assigned Seq.
//
// Returns ErrAlreadySelected if the participant already selected the
// activity, and ErrNotFound if the participant or activity does not exist.
func (c conn) CreateSelection(ctx context.Context, sel ir.Selection) (ir.Selection, error) {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO selections (id, participant_id, activity_id, enrolled_at)
		VALUES (?, ?, ?, ?)
	`, sel.ID, sel.ParticipantID, sel.ActivityID, formatTime(sel.EnrolledAt))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) {
			switch sqliteErr.ExtendedCode {
			case sqlite3.ErrConstraintUnique:
				return ir.Selection{}, fmt.Errorf("create selection %s/%s: %w", sel.ParticipantID, sel.ActivityID, ErrAlreadySelected)
			case sqlite3.ErrConstraintForeignKey:
				return ir.Selection{}, fmt.Errorf("create selection %s/%s: %w", sel.ParticipantID, sel.ActivityID, ErrNotFound)
			}
		}
		return ir.Selection{}, fmt.Errorf("create selection: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return ir.Selection{}, fmt.Errorf("create selection: %w", err)
	}
	sel.Seq = seq
	sel.EnrolledAt = sel.EnrolledAt.UTC()
	return sel, nil
}

// DeleteSelection removes a selection by id.
func (c conn) DeleteSelection(ctx context.Context, selectionID string) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM selections WHERE id = ?`, selectionID)
	if err != nil {
		return fmt.Errorf("delete selection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete selection: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("selection %q: %w", selectionID, ErrNotFound)
	}
	return nil
}
