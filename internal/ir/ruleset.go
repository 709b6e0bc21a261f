package ir

import (
	"encoding/json"
	"slices"
)

// Warning codes attached to a compiled RuleSet.
const (
	// WarnForbiddenMandatory: an activity is both mandatory and forbidden
	// for the role. Forbidden wins.
	WarnForbiddenMandatory = "forbidden_mandatory"

	// WarnRequiresCycle: REQUIRES/ALL targets form a cycle.
	WarnRequiresCycle = "requires_cycle"

	// WarnDanglingReference: a correlation names an activity that is not
	// in the catalog. The correlation is ignored.
	WarnDanglingReference = "dangling_reference"
)

// Dependency lists the activities a source activity requires or excludes.
type Dependency struct {
	Required []string `json:"required"`
	Excluded []string `json:"excluded"`
}

func (d Dependency) clone() Dependency {
	return Dependency{
		Required: cloneStrings(d.Required),
		Excluded: cloneStrings(d.Excluded),
	}
}

// RuleWarning is a catalog-content warning raised while compiling rules.
type RuleWarning struct {
	Code          string   `json:"code"`
	ActivityID    string   `json:"activity_id,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	Path          []string `json:"path,omitempty"`
	Message       string   `json:"message"`
}

// RuleSet is the per-role view of a catalog: which activities are
// mandatory, which are forbidden, and which each activity requires or
// excludes.
//
// A RuleSet is immutable. All accessors return copies, so a RuleSet can be
// shared freely across goroutines and passed down the engine call chain as
// a plain value.
type RuleSet struct {
	role      ParticipantRole
	mandatory map[string]struct{}
	forbidden map[string]struct{}
	deps      map[string]Dependency
	warnings  []RuleWarning
}

// NewRuleSet builds a RuleSet from already-resolved sets. Inputs are copied.
// Callers normally obtain a RuleSet from compiler.CompileRules.
func NewRuleSet(role ParticipantRole, mandatory, forbidden []string, deps map[string]Dependency, warnings []RuleWarning) RuleSet {
	rs := RuleSet{
		role:      role,
		mandatory: make(map[string]struct{}, len(mandatory)),
		forbidden: make(map[string]struct{}, len(forbidden)),
		deps:      make(map[string]Dependency, len(deps)),
		warnings:  slices.Clone(warnings),
	}
	for _, id := range mandatory {
		rs.mandatory[id] = struct{}{}
	}
	for _, id := range forbidden {
		rs.forbidden[id] = struct{}{}
	}
	for id, d := range deps {
		rs.deps[id] = d.clone()
	}
	return rs
}

// Role returns the role the RuleSet was compiled for.
func (rs RuleSet) Role() ParticipantRole {
	return rs.role
}

// IsMandatory reports whether the activity must always be selected.
func (rs RuleSet) IsMandatory(activityID string) bool {
	_, ok := rs.mandatory[activityID]
	return ok
}

// IsForbidden reports whether the activity must never be selected.
func (rs RuleSet) IsForbidden(activityID string) bool {
	_, ok := rs.forbidden[activityID]
	return ok
}

// MandatoryIDs returns the mandatory activity ids, sorted.
func (rs RuleSet) MandatoryIDs() []string {
	return sortedKeys(rs.mandatory)
}

// ForbiddenIDs returns the forbidden activity ids, sorted.
func (rs RuleSet) ForbiddenIDs() []string {
	return sortedKeys(rs.forbidden)
}

// Dependencies returns what the activity requires and excludes.
// An activity with no outgoing rules yields empty lists.
func (rs RuleSet) Dependencies(activityID string) Dependency {
	d, ok := rs.deps[activityID]
	if !ok {
		return Dependency{Required: []string{}, Excluded: []string{}}
	}
	return d.clone()
}

// DependencySources returns the ids of activities that have outgoing
// rules, sorted.
func (rs RuleSet) DependencySources() []string {
	ids := make([]string, 0, len(rs.deps))
	for id := range rs.deps {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Warnings returns the content warnings raised during compilation.
func (rs RuleSet) Warnings() []RuleWarning {
	return slices.Clone(rs.warnings)
}

// ruleSetJSON is the wire form of a RuleSet.
type ruleSetJSON struct {
	Version      string                `json:"version"`
	Role         ParticipantRole       `json:"role"`
	Mandatory    []string              `json:"mandatory_ids"`
	Forbidden    []string              `json:"forbidden_ids"`
	Dependencies map[string]Dependency `json:"dependencies"`
	Warnings     []RuleWarning         `json:"warnings"`
}

// MarshalJSON renders the RuleSet with sorted id lists, so two equal
// RuleSets always serialize to the same bytes.
func (rs RuleSet) MarshalJSON() ([]byte, error) {
	out := ruleSetJSON{
		Version:      RulesVersion,
		Role:         rs.role,
		Mandatory:    rs.MandatoryIDs(),
		Forbidden:    rs.ForbiddenIDs(),
		Dependencies: make(map[string]Dependency, len(rs.deps)),
		Warnings:     rs.Warnings(),
	}
	for id, d := range rs.deps {
		out.Dependencies[id] = d.clone()
	}
	if out.Warnings == nil {
		out.Warnings = []RuleWarning{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a RuleSet written by MarshalJSON, letting a
// preview client consume the server's compiled rules as-is.
func (rs *RuleSet) UnmarshalJSON(data []byte) error {
	var in ruleSetJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*rs = NewRuleSet(in.Role, in.Mandatory, in.Forbidden, in.Dependencies, in.Warnings)
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
