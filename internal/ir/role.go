package ir

import (
	"fmt"
	"slices"
	"strings"
)

// ParticipantRole is the single role tag carried by a participant.
// The set of roles is closed: values outside the constants below are
// rejected by ParseRole, so rule evaluation never compares raw strings.
type ParticipantRole string

const (
	RoleParticipant   ParticipantRole = "PARTICIPANT"
	RoleMembreJunior  ParticipantRole = "MEMBRE_JUNIOR"
	RoleMembreSenior  ParticipantRole = "MEMBRE_SENIOR"
	RoleAlumni        ParticipantRole = "ALUMNI"
	RolePresident     ParticipantRole = "PRESIDENT"
	RoleVicePresident ParticipantRole = "VICE_PRESIDENT"
	RoleTresorier     ParticipantRole = "TRESORIER"
	RoleSecretaire    ParticipantRole = "SECRETAIRE"
	RoleAdmin         ParticipantRole = "ADMIN"
)

var allRoles = []ParticipantRole{
	RoleParticipant,
	RoleMembreJunior,
	RoleMembreSenior,
	RoleAlumni,
	RolePresident,
	RoleVicePresident,
	RoleTresorier,
	RoleSecretaire,
	RoleAdmin,
}

// AllRoles returns every known role in declaration order.
func AllRoles() []ParticipantRole {
	return slices.Clone(allRoles)
}

// Valid reports whether r is one of the known roles.
func (r ParticipantRole) Valid() bool {
	return slices.Contains(allRoles, r)
}

func (r ParticipantRole) String() string {
	return string(r)
}

// ParseRole converts a role tag to a ParticipantRole.
// Matching is case-insensitive and tolerates surrounding whitespace
// and dashes in place of underscores ("vice-president").
func ParseRole(s string) (ParticipantRole, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	r := ParticipantRole(norm)
	if !r.Valid() {
		return "", fmt.Errorf("unknown participant role %q", s)
	}
	return r, nil
}

// ParseRoles parses a list of role tags, failing on the first unknown tag.
// Duplicates are removed; order of first occurrence is kept.
func ParseRoles(tags []string) ([]ParticipantRole, error) {
	roles := make([]ParticipantRole, 0, len(tags))
	for _, tag := range tags {
		r, err := ParseRole(tag)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(roles, r) {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

// HasRole reports whether roles contains r.
func HasRole(roles []ParticipantRole, r ParticipantRole) bool {
	return slices.Contains(roles, r)
}
