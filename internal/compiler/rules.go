package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/agenda/internal/ir"
)

// CompileRules derives the RuleSet for one participant role from a full
// activity and correlation catalog.
//
// This is the only place role logic is evaluated. The server engine and
// any preview client call the same function, so identical catalog
// snapshots always yield identical RuleSets (and fingerprints).
//
// The algorithm:
//  1. Activities that are globally required, or required for the role,
//     are mandatory.
//  2. Correlations whose role is unset or equal to the role are applied in
//     catalog order. Role-level REQUIRES/ALL makes the source mandatory,
//     role-level EXCLUDES makes it forbidden. Activity-to-activity rules
//     fill the dependency map (required or excluded targets per source).
//  3. Forbidden wins over mandatory; each overlap is reported as a warning.
//  4. REQUIRES/ALL cycles and references to unknown activities are
//     reported as warnings.
func CompileRules(activities []ir.Activity, correlations []ir.Correlation, role ir.ParticipantRole) ir.RuleSet {
	known := make(map[string]bool, len(activities))
	for _, a := range activities {
		known[a.ID] = true
	}

	var (
		mandatory []string
		forbidden []string
		warnings  []ir.RuleWarning
		deps      = make(map[string]ir.Dependency)
		applied   []ir.Correlation
	)

	for _, a := range activities {
		if a.IsRequired || ir.HasRole(a.RequiredForRoles, role) {
			mandatory = appendUnique(mandatory, a.ID)
		}
	}

	for _, c := range correlations {
		if !RoleMatches(c, role) {
			continue
		}

		if !known[c.SourceActivityID] {
			warnings = append(warnings, danglingWarning(c, c.SourceActivityID))
			continue
		}

		if c.IsRoleLevel() {
			if c.Rule.Implies() {
				mandatory = appendUnique(mandatory, c.SourceActivityID)
			} else {
				forbidden = appendUnique(forbidden, c.SourceActivityID)
			}
			continue
		}

		if !known[c.TargetActivityID] {
			warnings = append(warnings, danglingWarning(c, c.TargetActivityID))
			continue
		}

		d := deps[c.SourceActivityID]
		if c.Rule.Implies() {
			d.Required = appendUnique(d.Required, c.TargetActivityID)
		} else {
			d.Excluded = appendUnique(d.Excluded, c.TargetActivityID)
		}
		deps[c.SourceActivityID] = d
		applied = append(applied, c)
	}

	kept := mandatory[:0:0]
	for _, id := range mandatory {
		if slices.Contains(forbidden, id) {
			warnings = append(warnings, ir.RuleWarning{
				Code:       ir.WarnForbiddenMandatory,
				ActivityID: id,
				Message:    fmt.Sprintf("activity %q is both mandatory and forbidden for role %s; treating it as forbidden", id, role),
			})
			continue
		}
		kept = append(kept, id)
	}

	warnings = append(warnings, AnalyzeRequires(applied)...)

	return ir.NewRuleSet(role, kept, forbidden, deps, warnings)
}

// CompileCatalogRules is CompileRules over a Catalog.
func CompileCatalogRules(cat *ir.Catalog, role ir.ParticipantRole) ir.RuleSet {
	return CompileRules(cat.Activities, cat.Correlations, role)
}

// RoleMatches reports whether a correlation applies to the role.
// A correlation without a role applies to every role.
func RoleMatches(c ir.Correlation, role ir.ParticipantRole) bool {
	return c.Role == nil || *c.Role == role
}

// AutoPickAllowed reports whether a REQUIRES target may be added
// automatically for the role. An empty AutoPickForRoles allows every role.
// ALL targets are listed as dependencies but never picked.
func AutoPickAllowed(c ir.Correlation, role ir.ParticipantRole) bool {
	if c.Rule != ir.RuleRequires || c.IsRoleLevel() || !RoleMatches(c, role) {
		return false
	}
	return len(c.AutoPickForRoles) == 0 || ir.HasRole(c.AutoPickForRoles, role)
}

func danglingWarning(c ir.Correlation, missing string) ir.RuleWarning {
	return ir.RuleWarning{
		Code:          ir.WarnDanglingReference,
		ActivityID:    missing,
		CorrelationID: c.ID,
		Message:       fmt.Sprintf("correlation %q references unknown activity %q; ignored", c.ID, missing),
	}
}

func appendUnique(list []string, id string) []string {
	if slices.Contains(list, id) {
		return list
	}
	return append(list, id)
}
