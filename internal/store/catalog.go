package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/agenda/internal/ir"
)

// ImportResult summarizes an ImportCatalog call.
type ImportResult struct {
	ActivityTypes     int `json:"activity_types"`
	Activities        int `json:"activities"`
	Correlations      int `json:"correlations"`
	RemovedActivities int `json:"removed_activities"`
}

// ImportCatalog replaces the stored catalog with cat in one transaction.
//
// Activities are upserted by id, so selections on activities that survive
// the import are kept. Activities missing from cat are deleted and their
// selections cascade away with them. Correlations are replaced wholesale.
// The catalog is expected to be validated beforehand.
func (s *Store) ImportCatalog(ctx context.Context, cat *ir.Catalog) (ImportResult, error) {
	var result ImportResult
	err := s.withTx(ctx, func(tx *Tx) error {
		var err error
		result, err = tx.replaceCatalog(ctx, cat)
		return err
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("import catalog: %w", err)
	}

	s.log.Info("catalog imported",
		"activity_types", result.ActivityTypes,
		"activities", result.Activities,
		"correlations", result.Correlations,
		"removed_activities", result.RemovedActivities,
	)
	return result, nil
}

func (c conn) replaceCatalog(ctx context.Context, cat *ir.Catalog) (ImportResult, error) {
	result := ImportResult{
		ActivityTypes: len(cat.ActivityTypes),
		Activities:    len(cat.Activities),
		Correlations:  len(cat.Correlations),
	}

	typeIDs := make([]string, 0, len(cat.ActivityTypes))
	for i, t := range cat.ActivityTypes {
		_, err := sqlx.NamedExecContext(ctx, c.q, `
			INSERT INTO activity_types (id, position, name, day)
			VALUES (:id, :position, :name, :day)
			ON CONFLICT(id) DO UPDATE SET
				position = excluded.position, name = excluded.name, day = excluded.day
		`, activityTypeRow{ID: t.ID, Position: i, Name: t.Name, Day: t.Day})
		if err != nil {
			return result, fmt.Errorf("upsert activity type %s: %w", t.ID, err)
		}
		typeIDs = append(typeIDs, t.ID)
	}
	if _, err := c.deleteMissing(ctx, "activity_types", typeIDs); err != nil {
		return result, err
	}

	activityIDs := make([]string, 0, len(cat.Activities))
	for i, a := range cat.Activities {
		row, err := newActivityRow(i, a)
		if err != nil {
			return result, err
		}
		_, err = sqlx.NamedExecContext(ctx, c.q, `
			INSERT INTO activities (`+activityColumns+`)
			VALUES (:id, :position, :name, :description, :start_time, :end_time, :capacity,
				:is_required, :required_for_roles, :activity_type_id, :day_key)
			ON CONFLICT(id) DO UPDATE SET
				position = excluded.position,
				name = excluded.name,
				description = excluded.description,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				capacity = excluded.capacity,
				is_required = excluded.is_required,
				required_for_roles = excluded.required_for_roles,
				activity_type_id = excluded.activity_type_id,
				day_key = excluded.day_key
		`, row)
		if err != nil {
			return result, fmt.Errorf("upsert activity %s: %w", a.ID, err)
		}
		activityIDs = append(activityIDs, a.ID)
	}
	removed, err := c.deleteMissing(ctx, "activities", activityIDs)
	if err != nil {
		return result, err
	}
	result.RemovedActivities = int(removed)

	if _, err := c.q.ExecContext(ctx, `DELETE FROM correlations`); err != nil {
		return result, fmt.Errorf("clear correlations: %w", err)
	}
	for i, corr := range cat.Correlations {
		row, err := newCorrelationRow(i, corr)
		if err != nil {
			return result, err
		}
		_, err = sqlx.NamedExecContext(ctx, c.q, `
			INSERT INTO correlations
			(id, position, rule, source_activity_id, target_activity_id, role, auto_pick_for_roles)
			VALUES (:id, :position, :rule, :source_activity_id, :target_activity_id, :role, :auto_pick_for_roles)
		`, row)
		if err != nil {
			return result, fmt.Errorf("insert correlation %s: %w", corr.ID, err)
		}
	}

	return result, nil
}

// deleteMissing removes rows of table whose id is not in keep.
func (c conn) deleteMissing(ctx context.Context, table string, keep []string) (int64, error) {
	query := `DELETE FROM ` + table
	var args []any
	if len(keep) > 0 {
		var err error
		query, args, err = sqlx.In(query+` WHERE id NOT IN (?)`, keep)
		if err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
		query = c.q.Rebind(query)
	}

	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", table, err)
	}
	return res.RowsAffected()
}
