package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Domain prefixes for fingerprints.
// The version suffix leaves room for a future algorithm change.
const (
	DomainRuleSet = "agenda/ruleset/v1"
	DomainCatalog = "agenda/catalog/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
// The null separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns a stable hash of the RuleSet. Two RuleSets compiled
// from the same catalog snapshot for the same role have equal
// fingerprints, which lets a preview client check it is applying the same
// rules as the server.
func (rs RuleSet) Fingerprint() (string, error) {
	deps := make(Object, len(rs.deps))
	for id, d := range rs.deps {
		deps[id] = Object{
			"required": Strings(d.Required),
			"excluded": Strings(d.Excluded),
		}
	}

	warnings := make(Array, len(rs.warnings))
	for i, w := range rs.warnings {
		warnings[i] = Object{
			"code":           String(w.Code),
			"activity_id":    String(w.ActivityID),
			"correlation_id": String(w.CorrelationID),
			"path":           Strings(w.Path),
		}
	}

	doc := Object{
		"version":       String(RulesVersion),
		"role":          String(rs.role),
		"mandatory_ids": Strings(rs.MandatoryIDs()),
		"forbidden_ids": Strings(rs.ForbiddenIDs()),
		"dependencies":  deps,
		"warnings":      warnings,
	}

	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("RuleSet fingerprint: %w", err)
	}
	return hashWithDomain(DomainRuleSet, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests.
func (rs RuleSet) MustFingerprint() string {
	fp, err := rs.Fingerprint()
	if err != nil {
		panic(err)
	}
	return fp
}

// CatalogHash returns a stable hash of a catalog snapshot. Order of
// activities and correlations is significant because rule compilation
// is order-sensitive.
func CatalogHash(c Catalog) (string, error) {
	types := make(Array, len(c.ActivityTypes))
	for i, t := range c.ActivityTypes {
		types[i] = Object{
			"id":   String(t.ID),
			"name": String(t.Name),
			"day":  String(t.Day),
		}
	}

	activities := make(Array, len(c.Activities))
	for i, a := range c.Activities {
		activities[i] = Object{
			"id":                 String(a.ID),
			"name":               String(a.Name),
			"description":        String(a.Description),
			"start_time":         String(a.StartTime.UTC().Format(time.RFC3339)),
			"end_time":           String(a.EndTime.UTC().Format(time.RFC3339)),
			"capacity":           Int(a.Capacity),
			"is_required":        Bool(a.IsRequired),
			"required_for_roles": roleArray(a.RequiredForRoles),
			"activity_type_id":   String(a.ActivityTypeID),
			"day_key":            String(a.DayKey),
		}
	}

	correlations := make(Array, len(c.Correlations))
	for i, corr := range c.Correlations {
		obj := Object{
			"id":                  String(corr.ID),
			"rule":                String(corr.Rule),
			"source_activity_id":  String(corr.SourceActivityID),
			"target_activity_id":  String(corr.TargetActivityID),
			"auto_pick_for_roles": roleArray(corr.AutoPickForRoles),
		}
		if corr.Role != nil {
			obj["role"] = String(*corr.Role)
		}
		correlations[i] = obj
	}

	canonical, err := MarshalCanonical(Object{
		"activity_types": types,
		"activities":     activities,
		"correlations":   correlations,
	})
	if err != nil {
		return "", fmt.Errorf("catalog hash: %w", err)
	}
	return hashWithDomain(DomainCatalog, canonical), nil
}

func roleArray(roles []ParticipantRole) Array {
	arr := make(Array, len(roles))
	for i, r := range roles {
		arr[i] = String(r)
	}
	return arr
}
