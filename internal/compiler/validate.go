package compiler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/agenda/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidField          = "E200" // struct field failed validation
	ErrDuplicateActivity     = "E201" // activity id declared twice
	ErrInvalidTimeWindow     = "E202" // end is not after start
	ErrUnknownActivityType   = "E203" // activity references an undeclared type
	ErrDanglingReference     = "E204" // correlation references an unknown activity
	ErrSelfCorrelation       = "E205" // correlation source equals target
	ErrDuplicateCorrelation  = "E206" // correlation id declared twice
	ErrAutoPickNotApplicable = "E207" // auto_pick_for on a rule that never auto-picks
	ErrDuplicateActivityType = "E208" // activity type id declared twice
)

// ValidationError represents a catalog validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var (
	validateOnce sync.Once
	structValid  *validator.Validate
)

// structValidator returns the shared validator with agenda's custom tags
// registered. validator.Validate caches struct metadata and is safe for
// concurrent use.
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("participant_role", func(fl validator.FieldLevel) bool {
			return ir.ParticipantRole(fl.Field().String()).Valid()
		})
		structValid = v
	})
	return structValid
}

// ValidateParticipant checks a participant before it is stored.
func ValidateParticipant(p ir.Participant) error {
	if errs := validateStruct("participant", p); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateCatalog validates a compiled catalog.
// Returns all errors found (does not fail fast).
func ValidateCatalog(cat *ir.Catalog) []ValidationError {
	var errs []ValidationError

	typeIDs := make(map[string]bool, len(cat.ActivityTypes))
	for i, t := range cat.ActivityTypes {
		field := fmt.Sprintf("activity_type.%s", t.ID)
		if typeIDs[t.ID] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "duplicate activity type id",
				Code:    ErrDuplicateActivityType,
			})
		}
		typeIDs[t.ID] = true
		errs = append(errs, validateStruct(fmt.Sprintf("activity_type[%d]", i), t)...)
	}

	activityIDs := make(map[string]bool, len(cat.Activities))
	for _, a := range cat.Activities {
		field := fmt.Sprintf("activity.%s", a.ID)
		if activityIDs[a.ID] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "duplicate activity id",
				Code:    ErrDuplicateActivity,
			})
		}
		activityIDs[a.ID] = true

		errs = append(errs, validateStruct(field, a)...)

		if a.ActivityTypeID != "" && !typeIDs[a.ActivityTypeID] {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("unknown activity type %q", a.ActivityTypeID),
				Code:    ErrUnknownActivityType,
			})
		}
	}

	corrIDs := make(map[string]bool, len(cat.Correlations))
	for _, c := range cat.Correlations {
		field := fmt.Sprintf("correlation.%s", c.ID)
		if corrIDs[c.ID] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "duplicate correlation id",
				Code:    ErrDuplicateCorrelation,
			})
		}
		corrIDs[c.ID] = true

		errs = append(errs, validateStruct(field, c)...)

		if c.SourceActivityID != "" && !activityIDs[c.SourceActivityID] {
			errs = append(errs, ValidationError{
				Field:   field + ".source",
				Message: fmt.Sprintf("unknown activity %q", c.SourceActivityID),
				Code:    ErrDanglingReference,
			})
		}
		if !c.IsRoleLevel() && !activityIDs[c.TargetActivityID] {
			errs = append(errs, ValidationError{
				Field:   field + ".target",
				Message: fmt.Sprintf("unknown activity %q", c.TargetActivityID),
				Code:    ErrDanglingReference,
			})
		}
		if !c.IsRoleLevel() && c.SourceActivityID == c.TargetActivityID {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "source and target are the same activity",
				Code:    ErrSelfCorrelation,
			})
		}
		if len(c.AutoPickForRoles) > 0 && (c.Rule == ir.RuleExcludes || c.IsRoleLevel()) {
			errs = append(errs, ValidationError{
				Field:   field + ".auto_pick_for",
				Message: "auto_pick_for only applies to REQUIRES/ALL rules with a target",
				Code:    ErrAutoPickNotApplicable,
			})
		}
	}

	return errs
}

// validateStruct runs tag-based validation and converts the result.
func validateStruct(prefix string, s any) []ValidationError {
	err := structValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Field: prefix, Message: err.Error(), Code: ErrInvalidField}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		code := ErrInvalidField
		msg := fmt.Sprintf("failed %q validation", fe.Tag())
		switch fe.Tag() {
		case "gtfield":
			code = ErrInvalidTimeWindow
			msg = fmt.Sprintf("must be after %s", fe.Param())
		case "required":
			msg = "is required"
		case "participant_role":
			msg = fmt.Sprintf("unknown participant role %q", fe.Value())
		case "oneof":
			msg = fmt.Sprintf("must be one of %s", fe.Param())
		}
		out = append(out, ValidationError{
			Field:   prefix + "." + fe.Field(),
			Message: msg,
			Code:    code,
		})
	}
	return out
}

// CatalogReport is the role-by-role analysis of a catalog.
type CatalogReport struct {
	CatalogHash string                                  `json:"catalog_hash"`
	Warnings    map[ir.ParticipantRole][]ir.RuleWarning `json:"warnings"`
}

// AnalyzeCatalog compiles the catalog for every role and collects the
// content warnings, plus mandatory activities that collide in time (which
// would make EnsureRequired fail for that role).
func AnalyzeCatalog(cat *ir.Catalog) (*CatalogReport, error) {
	hash, err := ir.CatalogHash(*cat)
	if err != nil {
		return nil, err
	}

	report := &CatalogReport{
		CatalogHash: hash,
		Warnings:    make(map[ir.ParticipantRole][]ir.RuleWarning),
	}

	for _, role := range ir.AllRoles() {
		rs := CompileCatalogRules(cat, role)
		warnings := rs.Warnings()
		warnings = append(warnings, mandatoryOverlaps(cat, rs)...)
		if len(warnings) > 0 {
			report.Warnings[role] = warnings
		}
	}

	return report, nil
}

// WarnMandatoryOverlap: two mandatory activities collide in time.
const WarnMandatoryOverlap = "mandatory_overlap"

func mandatoryOverlaps(cat *ir.Catalog, rs ir.RuleSet) []ir.RuleWarning {
	var mandatory []ir.Activity
	for _, a := range cat.Activities {
		if rs.IsMandatory(a.ID) {
			mandatory = append(mandatory, a)
		}
	}

	var warnings []ir.RuleWarning
	for i := 0; i < len(mandatory); i++ {
		for j := i + 1; j < len(mandatory); j++ {
			if mandatory[i].ConflictsWith(mandatory[j]) {
				warnings = append(warnings, ir.RuleWarning{
					Code:       WarnMandatoryOverlap,
					ActivityID: mandatory[i].ID,
					Path:       []string{mandatory[i].ID, mandatory[j].ID},
					Message: fmt.Sprintf("mandatory activities %q and %q overlap on %s",
						mandatory[i].ID, mandatory[j].ID, mandatory[i].DayKey),
				})
			}
		}
	}
	return warnings
}
