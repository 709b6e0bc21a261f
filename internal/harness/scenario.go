package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/agenda/internal/ir"
)

// Scenario is a scripted sequence of selection operations against one
// catalog, with expectations per step and assertions on the final
// programs.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Catalog is the directory of CUE catalog files. A relative path is
	// resolved against the scenario file's directory.
	Catalog string `yaml:"catalog"`

	// MaxSteps overrides the engine's auto-pick quota when positive.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// AtomicPrograms runs update_program steps all-or-nothing.
	AtomicPrograms bool `yaml:"atomic_programs,omitempty"`

	// Participants are registered before the first step.
	Participants []ParticipantDef `yaml:"participants"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// ParticipantDef declares a participant.
type ParticipantDef struct {
	ID   string             `yaml:"id"`
	Role ir.ParticipantRole `yaml:"role"`
	Name string             `yaml:"name,omitempty"`
}

// Step is one engine operation.
type Step struct {
	// Op is one of select, deselect, ensure_required, update_program.
	Op string `yaml:"op"`

	Participant string `yaml:"participant"`

	// Activity is used by select and deselect.
	Activity string `yaml:"activity,omitempty"`

	// Activities is the desired program for update_program.
	Activities []string `yaml:"activities,omitempty"`

	// Expect is checked against the step outcome. A step without Expect
	// must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause describes the expected outcome of a step. Only the fields
// that are set are compared.
type ExpectClause struct {
	// Error is an engine error kind (NOT_FOUND, FORBIDDEN, CONFLICT) or
	// STEPS_EXCEEDED. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	AutoPicked []string `yaml:"auto_picked,omitempty"`
	Evicted    []string `yaml:"evicted,omitempty"`
	Added      []string `yaml:"added,omitempty"`

	// Warnings lists expected auto-pick warning codes in order.
	Warnings []string `yaml:"warnings,omitempty"`

	Removed         *bool `yaml:"removed,omitempty"`
	AlreadySelected *bool `yaml:"already_selected,omitempty"`
}

// Assertion checks a participant's final program.
type Assertion struct {
	// Type is one of selected, not_selected, program_equals, no_overlap,
	// mandatory_present.
	Type string `yaml:"type"`

	Participant string `yaml:"participant"`

	// Activity is used by selected and not_selected.
	Activity string `yaml:"activity,omitempty"`

	// Activities is the exact expected program for program_equals, in
	// enrolment order.
	Activities []string `yaml:"activities,omitempty"`
}

// Step operations.
const (
	OpSelect         = "select"
	OpDeselect       = "deselect"
	OpEnsureRequired = "ensure_required"
	OpUpdateProgram  = "update_program"
)

// Assertion types.
const (
	AssertSelected         = "selected"
	AssertNotSelected      = "not_selected"
	AssertProgramEquals    = "program_equals"
	AssertNoOverlap        = "no_overlap"
	AssertMandatoryPresent = "mandatory_present"
)

var expectedErrors = map[string]bool{
	"NOT_FOUND":          true,
	"FORBIDDEN":          true,
	"CONFLICT":           true,
	OutcomeStepsExceeded: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. A relative catalog path is resolved
// against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) && baseDir != "" {
		scenario.Catalog = filepath.Join(baseDir, scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	seen := make(map[string]bool, len(s.Participants))
	for i, p := range s.Participants {
		if p.ID == "" {
			return fmt.Errorf("participants[%d]: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("participants[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if !p.Role.Valid() {
			return fmt.Errorf("participants[%d]: unknown role %q", i, p.Role)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	if step.Participant == "" {
		return fmt.Errorf("steps[%d]: participant is required", index)
	}

	switch step.Op {
	case OpSelect, OpDeselect:
		if step.Activity == "" {
			return fmt.Errorf("steps[%d]: activity is required for %s", index, step.Op)
		}
	case OpEnsureRequired, OpUpdateProgram:
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	if step.Expect != nil && step.Expect.Error != "" && !expectedErrors[step.Expect.Error] {
		return fmt.Errorf("steps[%d]: unknown expected error %q", index, step.Expect.Error)
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Participant == "" {
		return fmt.Errorf("assertions[%d]: participant is required", index)
	}

	switch a.Type {
	case AssertSelected, AssertNotSelected:
		if a.Activity == "" {
			return fmt.Errorf("assertions[%d]: activity is required for %s", index, a.Type)
		}
	case AssertProgramEquals, AssertNoOverlap, AssertMandatoryPresent:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
