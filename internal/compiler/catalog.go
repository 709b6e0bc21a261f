package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/gosimple/slug"

	"github.com/roach88/agenda/internal/ir"
)

// DayKeyLayout formats the fallback day-partition key derived from an
// activity's start time.
const DayKeyLayout = "2006-01-02"

// LoadCatalogDir loads every .cue file in dir as one CUE instance and
// compiles it into a Catalog.
func LoadCatalogDir(dir string) (*ir.Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan catalog directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	if instances[0].Err != nil {
		return nil, formatCUEError(instances[0].Err)
	}

	value := ctx.BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	return CompileCatalog(value)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// CompileCatalog parses a CUE value into a Catalog.
//
// The value holds three optional top-level structs, each keyed by id:
//
//	activity_type: opening: {name: "Opening", day: "Day 1"}
//	activity: ceremony: {name: "...", start: "2025-03-01T09:00:00Z", end: "...", type: "opening"}
//	correlation: c1: {rule: "REQUIRES", source: "workshop", target: "lunch"}
//
// Fields are read in declaration order, which fixes the order of rule
// compilation downstream.
func CompileCatalog(v cue.Value) (*ir.Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	cat := &ir.Catalog{
		ActivityTypes: []ir.ActivityType{},
		Activities:    []ir.Activity{},
		Correlations:  []ir.Correlation{},
	}

	var err error
	cat.ActivityTypes, err = parseActivityTypes(v)
	if err != nil {
		return nil, err
	}

	types := make(map[string]ir.ActivityType, len(cat.ActivityTypes))
	for _, t := range cat.ActivityTypes {
		types[t.ID] = t
	}

	cat.Activities, err = parseActivities(v, types)
	if err != nil {
		return nil, err
	}

	cat.Correlations, err = parseCorrelations(v)
	if err != nil {
		return nil, err
	}

	return cat, nil
}

func parseActivityTypes(v cue.Value) ([]ir.ActivityType, error) {
	types := []ir.ActivityType{}

	typesVal := v.LookupPath(cue.ParsePath("activity_type"))
	if !typesVal.Exists() {
		return types, nil
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		tv := iter.Value()
		t := ir.ActivityType{ID: iter.Label()}

		if t.Name, err = requiredString(tv, "name"); err != nil {
			return nil, err
		}
		if t.Day, err = optionalString(tv, "day"); err != nil {
			return nil, err
		}
		types = append(types, t)
	}

	return types, nil
}

func parseActivities(v cue.Value, types map[string]ir.ActivityType) ([]ir.Activity, error) {
	activities := []ir.Activity{}

	activitiesVal := v.LookupPath(cue.ParsePath("activity"))
	if !activitiesVal.Exists() {
		return activities, nil
	}

	iter, err := activitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		a, err := parseActivity(iter.Label(), iter.Value(), types)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	return activities, nil
}

func parseActivity(id string, v cue.Value, types map[string]ir.ActivityType) (ir.Activity, error) {
	a := ir.Activity{ID: id}
	var err error

	if a.Name, err = requiredString(v, "name"); err != nil {
		return a, err
	}
	if a.Description, err = optionalString(v, "description"); err != nil {
		return a, err
	}
	if a.StartTime, err = requiredTime(v, "start"); err != nil {
		return a, err
	}
	if a.EndTime, err = requiredTime(v, "end"); err != nil {
		return a, err
	}

	if capVal := v.LookupPath(cue.ParsePath("capacity")); capVal.Exists() {
		n, err := capVal.Int64()
		if err != nil {
			return a, &CompileError{Field: "capacity", Message: "capacity must be an integer", Pos: capVal.Pos()}
		}
		a.Capacity = int(n)
	}

	if reqVal := v.LookupPath(cue.ParsePath("required")); reqVal.Exists() {
		b, err := reqVal.Bool()
		if err != nil {
			return a, &CompileError{Field: "required", Message: "required must be a boolean", Pos: reqVal.Pos()}
		}
		a.IsRequired = b
	}

	if a.RequiredForRoles, err = optionalRoles(v, "required_for"); err != nil {
		return a, err
	}

	if a.ActivityTypeID, err = optionalString(v, "type"); err != nil {
		return a, err
	}

	a.DayKey = a.StartTime.Format(DayKeyLayout)
	if a.ActivityTypeID != "" {
		t, ok := types[a.ActivityTypeID]
		if !ok {
			return a, &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("activity %q references unknown activity type %q", id, a.ActivityTypeID),
				Pos:     v.LookupPath(cue.ParsePath("type")).Pos(),
			}
		}
		if key := DayKey(t.Day); key != "" {
			a.DayKey = key
		}
	}

	return a, nil
}

// DayKey normalizes a free-form day label ("Day 1", "Samedi 1er mars")
// into a stable day-partition key.
func DayKey(day string) string {
	return slug.Make(day)
}

func parseCorrelations(v cue.Value) ([]ir.Correlation, error) {
	correlations := []ir.Correlation{}

	corrVal := v.LookupPath(cue.ParsePath("correlation"))
	if !corrVal.Exists() {
		return correlations, nil
	}

	iter, err := corrVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		cv := iter.Value()
		c := ir.Correlation{ID: iter.Label()}

		ruleStr, err := requiredString(cv, "rule")
		if err != nil {
			return nil, err
		}
		if c.Rule, err = ir.ParseRuleKind(ruleStr); err != nil {
			return nil, &CompileError{Field: "rule", Message: err.Error(), Pos: cv.LookupPath(cue.ParsePath("rule")).Pos()}
		}

		if c.SourceActivityID, err = requiredString(cv, "source"); err != nil {
			return nil, err
		}
		if c.TargetActivityID, err = optionalString(cv, "target"); err != nil {
			return nil, err
		}

		roleStr, err := optionalString(cv, "role")
		if err != nil {
			return nil, err
		}
		if roleStr != "" {
			role, err := ir.ParseRole(roleStr)
			if err != nil {
				return nil, &CompileError{Field: "role", Message: err.Error(), Pos: cv.LookupPath(cue.ParsePath("role")).Pos()}
			}
			c.Role = &role
		}

		if c.AutoPickForRoles, err = optionalRoles(cv, "auto_pick_for"); err != nil {
			return nil, err
		}

		correlations = append(correlations, c)
	}

	return correlations, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: field + " must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: field + " must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func requiredTime(v cue.Value, field string) (time.Time, error) {
	s, err := requiredString(v, field)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be an RFC 3339 timestamp: %v", field, err),
			Pos:     v.LookupPath(cue.ParsePath(field)).Pos(),
		}
	}
	return ts, nil
}

func optionalRoles(v cue.Value, field string) ([]ir.ParticipantRole, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}

	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: field + " must be a list of roles", Pos: fv.Pos()}
	}

	var tags []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: field + " entries must be strings", Pos: iter.Value().Pos()}
		}
		tags = append(tags, s)
	}

	roles, err := ir.ParseRoles(tags)
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()}
	}
	if len(roles) == 0 {
		return nil, nil
	}
	return roles, nil
}

// CompileError represents a catalog compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
