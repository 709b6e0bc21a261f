package harness

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/agenda/internal/engine"
	"github.com/roach88/agenda/internal/ir"
)

// AssertionContext gives assertions read access to the finished run.
type AssertionContext struct {
	Ctx     context.Context
	Engine  *engine.Engine
	Catalog *ir.Catalog
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type        string
	Participant string
	Expected    string
	Actual      string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s failed for %s: expected %s, got %s", e.Type, e.Participant, e.Expected, e.Actual)
}

// EvaluateAssertions runs every assertion and returns the failure
// messages. It does not stop at the first failure.
func EvaluateAssertions(actx *AssertionContext, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluate(actx, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func evaluate(actx *AssertionContext, a Assertion) error {
	program, err := actx.program(a.Participant)
	if err != nil {
		return err
	}

	switch a.Type {
	case AssertSelected:
		return assertSelected(a, program)
	case AssertNotSelected:
		return assertNotSelected(a, program)
	case AssertProgramEquals:
		return assertProgramEquals(a, program)
	case AssertNoOverlap:
		return assertNoOverlap(actx.Catalog, a, program)
	case AssertMandatoryPresent:
		rules, err := actx.Engine.Rules(actx.Ctx, a.Participant)
		if err != nil {
			return err
		}
		return assertMandatoryPresent(rules, a, program)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (actx *AssertionContext) program(participantID string) ([]string, error) {
	sels, err := actx.Engine.Program(actx.Ctx, participantID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(sels))
	for i, s := range sels {
		ids[i] = s.ActivityID
	}
	return ids, nil
}

func assertSelected(a Assertion, program []string) error {
	if slices.Contains(program, a.Activity) {
		return nil
	}
	return &AssertionError{
		Type:        a.Type,
		Participant: a.Participant,
		Expected:    fmt.Sprintf("%s in program", a.Activity),
		Actual:      fmt.Sprintf("%v", program),
	}
}

func assertNotSelected(a Assertion, program []string) error {
	if !slices.Contains(program, a.Activity) {
		return nil
	}
	return &AssertionError{
		Type:        a.Type,
		Participant: a.Participant,
		Expected:    fmt.Sprintf("%s not in program", a.Activity),
		Actual:      fmt.Sprintf("%v", program),
	}
}

// assertProgramEquals compares activity ids in enrolment order.
func assertProgramEquals(a Assertion, program []string) error {
	if slices.Equal(a.Activities, program) {
		return nil
	}
	return &AssertionError{
		Type:        a.Type,
		Participant: a.Participant,
		Expected:    fmt.Sprintf("%v", a.Activities),
		Actual:      fmt.Sprintf("%v", program),
	}
}

func assertNoOverlap(cat *ir.Catalog, a Assertion, program []string) error {
	for i := 0; i < len(program); i++ {
		x, ok := cat.Activity(program[i])
		if !ok {
			return fmt.Errorf("activity %q not in catalog", program[i])
		}
		for j := i + 1; j < len(program); j++ {
			y, ok := cat.Activity(program[j])
			if !ok {
				return fmt.Errorf("activity %q not in catalog", program[j])
			}
			if engine.Overlaps(x, y) {
				return &AssertionError{
					Type:        a.Type,
					Participant: a.Participant,
					Expected:    "no overlapping activities",
					Actual:      fmt.Sprintf("%s overlaps %s", x.ID, y.ID),
				}
			}
		}
	}
	return nil
}

func assertMandatoryPresent(rules ir.RuleSet, a Assertion, program []string) error {
	var missing []string
	for _, id := range rules.MandatoryIDs() {
		if !slices.Contains(program, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &AssertionError{
		Type:        a.Type,
		Participant: a.Participant,
		Expected:    fmt.Sprintf("mandatory %v in program", rules.MandatoryIDs()),
		Actual:      fmt.Sprintf("missing %v", missing),
	}
}
