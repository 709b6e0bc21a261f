package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/agenda/internal/compiler"
	"github.com/roach88/agenda/internal/engine"
	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/logger"
	"github.com/roach88/agenda/internal/store"
	"github.com/roach88/agenda/internal/testutil"
)

// Harness runs one scenario against a real engine over a throwaway store.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	catalog *ir.Catalog
	log     *logger.Logger
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	log *logger.Logger
}

// WithLogger routes store and engine logs to l. The default discards them.
func WithLogger(l *logger.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh SQLite database in a temporary directory.
// Selection ids come from testutil.SequentialIDs and enrolment times from
// testutil.StepClock, so the trace is identical across runs.
//
// Execution flow:
//  1. Load, validate and import the catalog
//  2. Register participants
//  3. Execute steps, checking each expect clause
//  4. Evaluate assertions on the final programs
//
// Step and assertion failures are reported in the Result. The returned
// error is for failures of the harness itself (unreadable catalog,
// database errors).
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{log: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	cat, err := compiler.LoadCatalogDir(scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if verrs := compiler.ValidateCatalog(cat); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}

	dir, err := os.MkdirTemp("", "agenda-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "harness.db"), store.WithLogger(cfg.log))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	if _, err := st.ImportCatalog(ctx, cat); err != nil {
		return nil, fmt.Errorf("failed to import catalog: %w", err)
	}

	for _, p := range scenario.Participants {
		participant := ir.Participant{ID: p.ID, Role: p.Role, Name: p.Name}
		if err := compiler.ValidateParticipant(participant); err != nil {
			return nil, fmt.Errorf("participant %s: %w", p.ID, err)
		}
		if err := st.SaveParticipant(ctx, participant); err != nil {
			return nil, fmt.Errorf("failed to register participant %s: %w", p.ID, err)
		}
	}

	engineOpts := []engine.Option{
		engine.WithIDGenerator(testutil.NewSequentialIDs("sel")),
		engine.WithClock(testutil.NewStepClock(testutil.EventStart, time.Second).Now),
		engine.WithLogger(cfg.log),
	}
	if scenario.MaxSteps > 0 {
		engineOpts = append(engineOpts, engine.WithMaxSteps(scenario.MaxSteps))
	}
	if scenario.AtomicPrograms {
		engineOpts = append(engineOpts, engine.WithAtomicPrograms())
	}

	h := &Harness{
		store:   st,
		engine:  engine.New(st, engineOpts...),
		catalog: cat,
		log:     cfg.log.With("scenario", scenario.Name),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}

	for _, p := range scenario.Participants {
		program, err := h.programIDs(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		result.Programs[p.ID] = program
	}

	actx := &AssertionContext{Ctx: ctx, Engine: h.engine, Catalog: cat}
	for _, msg := range EvaluateAssertions(actx, scenario.Assertions) {
		result.AddError(msg)
	}

	h.log.Debug("scenario finished", "pass", result.Pass, "steps", len(result.Trace))
	return result, nil
}

// stepOutcome holds what a step returned beyond its trace fields.
type stepOutcome struct {
	err             error
	removed         *bool
	alreadySelected *bool
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	ev := TraceEvent{
		Step:        index + 1,
		Op:          step.Op,
		Participant: step.Participant,
		Activity:    step.Activity,
		Activities:  step.Activities,
	}

	var out stepOutcome
	switch step.Op {
	case OpSelect:
		res, err := h.engine.Select(ctx, step.Participant, step.Activity)
		out.err = err
		if err == nil {
			ev.AutoPicked = activityIDs(res.AutoPicked)
			ev.Evicted = activityIDs(res.Evicted)
			ev.Warnings = warningCodes(res.Warnings)
			out.alreadySelected = &res.AlreadySelected
		}
	case OpDeselect:
		res, err := h.engine.Deselect(ctx, step.Participant, step.Activity)
		out.err = err
		if err == nil {
			out.removed = &res.Removed
		}
	case OpEnsureRequired:
		res, err := h.engine.EnsureRequired(ctx, step.Participant)
		out.err = err
		if err == nil {
			ev.Added = activityIDs(res.Added)
			ev.Evicted = activityIDs(res.Evicted)
		}
	case OpUpdateProgram:
		_, out.err = h.engine.UpdateProgram(ctx, step.Participant, step.Activities)
	default:
		return fmt.Errorf("step %d: unknown op %q", index+1, step.Op)
	}

	outcome, ok := classify(out.err)
	if !ok {
		return fmt.Errorf("step %d (%s): %w", index+1, step.Op, out.err)
	}
	ev.Outcome = outcome

	program, err := h.programIDs(ctx, step.Participant)
	if err != nil {
		return err
	}
	ev.Program = program
	result.AddTrace(ev)

	h.log.Debug("step executed", "step", ev.Step, "op", ev.Op, "participant", ev.Participant, "outcome", outcome)

	for _, msg := range checkExpect(step, ev, out) {
		result.AddError(fmt.Sprintf("step %d (%s): %s", ev.Step, step.Op, msg))
	}
	return nil
}

// classify maps an operation error to a trace outcome. ok is false for
// errors that are not selection outcomes.
func classify(err error) (string, bool) {
	if err == nil {
		return OutcomeOK, true
	}
	if engine.IsStepsExceededError(err) {
		return OutcomeStepsExceeded, true
	}
	if kind, ok := engine.KindOf(err); ok {
		return string(kind), true
	}
	return "", false
}

func checkExpect(step Step, ev TraceEvent, out stepOutcome) []string {
	want := OutcomeOK
	if step.Expect != nil && step.Expect.Error != "" {
		want = step.Expect.Error
	}

	if ev.Outcome != want {
		if out.err != nil {
			return []string{fmt.Sprintf("expected %s, got %s: %v", want, ev.Outcome, out.err)}
		}
		return []string{fmt.Sprintf("expected %s, got %s", want, ev.Outcome)}
	}
	if step.Expect == nil {
		return nil
	}

	var msgs []string
	compare := func(field string, want, got []string) {
		if want != nil && !slices.Equal(want, got) {
			msgs = append(msgs, fmt.Sprintf("%s: expected %v, got %v", field, want, got))
		}
	}
	compare("auto_picked", step.Expect.AutoPicked, ev.AutoPicked)
	compare("evicted", step.Expect.Evicted, ev.Evicted)
	compare("added", step.Expect.Added, ev.Added)
	compare("warnings", step.Expect.Warnings, ev.Warnings)

	if step.Expect.Removed != nil && (out.removed == nil || *out.removed != *step.Expect.Removed) {
		msgs = append(msgs, fmt.Sprintf("removed: expected %v", *step.Expect.Removed))
	}
	if step.Expect.AlreadySelected != nil && (out.alreadySelected == nil || *out.alreadySelected != *step.Expect.AlreadySelected) {
		msgs = append(msgs, fmt.Sprintf("already_selected: expected %v", *step.Expect.AlreadySelected))
	}
	return msgs
}

// programIDs returns the participant's activity ids in enrolment order.
// An unknown participant has an empty program.
func (h *Harness) programIDs(ctx context.Context, participantID string) ([]string, error) {
	program, err := h.engine.Program(ctx, participantID)
	if engine.IsNotFound(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read program of %s: %w", participantID, err)
	}
	ids := make([]string, 0, len(program))
	for _, sel := range program {
		ids = append(ids, sel.ActivityID)
	}
	return ids, nil
}

func activityIDs(sels []ir.Selection) []string {
	if len(sels) == 0 {
		return nil
	}
	ids := make([]string, len(sels))
	for i, s := range sels {
		ids[i] = s.ActivityID
	}
	return ids
}

func warningCodes(warnings []engine.Warning) []string {
	if len(warnings) == 0 {
		return nil
	}
	codes := make([]string, len(warnings))
	for i, w := range warnings {
		codes[i] = w.Code
	}
	return codes
}
