// Package ir provides the domain types shared by every agenda package.
//
// This package contains type definitions and value helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - ParticipantRole is a closed set; unknown tags are rejected by ParseRole
//   - RuleSet is an immutable value, safe to pass between goroutines
//   - Fingerprints use RFC 8785 canonical JSON with domain-separated SHA-256
//   - All JSON tags use snake_case
package ir
