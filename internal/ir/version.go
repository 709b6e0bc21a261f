package ir

// Version constants for the rule model and engine.
const (
	// RulesVersion is the version of the compiled RuleSet format.
	// Bump it when the canonical RuleSet layout changes.
	RulesVersion = "1"

	// EngineVersion is the agenda engine version.
	EngineVersion = "0.1.0"
)
