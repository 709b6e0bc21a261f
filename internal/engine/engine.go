package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/agenda/internal/compiler"
	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/logger"
	"github.com/roach88/agenda/internal/store"
)

// DefaultMaxSteps is the default auto-pick quota per Select call.
const DefaultMaxSteps = 1000

// Auto-pick warning codes.
const (
	WarnAutoPickForbidden = "auto_pick_forbidden"
	WarnAutoPickExcluded  = "auto_pick_excluded"
	WarnAutoPickConflict  = "auto_pick_conflict"
)

// Engine applies participant selection requests against the catalog.
//
// Every operation loads the participant, the catalog and the current
// selections, compiles the RuleSet for the participant's role and then
// decides. Nothing is cached between calls, so a catalog import takes
// effect on the next request.
//
// Thread-safety: all methods are safe for concurrent use. Operations on
// the same participant are serialized by the Locker; operations on
// different participants run in parallel.
type Engine struct {
	repo           store.Repository
	ids            IDGenerator
	now            func() time.Time
	locker         Locker
	log            *logger.Logger
	maxSteps       int
	atomicPrograms bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSteps sets the auto-pick quota per Select call.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithLogger sets the engine's logger. The default discards output.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithLocker replaces the default in-process LocalLocker.
func WithLocker(l Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithIDGenerator sets the selection id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the source of enrolment timestamps. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithAtomicPrograms makes UpdateProgram all-or-nothing: the whole call
// runs in one store transaction.
func WithAtomicPrograms() Option {
	return func(e *Engine) {
		e.atomicPrograms = true
	}
}

// New creates an Engine over repo.
func New(repo store.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		ids:      UUIDv7Generator{},
		now:      time.Now,
		locker:   NewLocalLocker(),
		log:      logger.Nop(),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Warning is a non-fatal note attached to a SelectResult.
type Warning struct {
	Code       string `json:"code"`
	ActivityID string `json:"activity_id"`
	Message    string `json:"message"`
}

// SelectResult is the outcome of Select.
type SelectResult struct {
	// Selection is the requested activity's selection.
	Selection ir.Selection `json:"selection"`

	// AutoPicked lists selections added by REQUIRES propagation.
	AutoPicked []ir.Selection `json:"auto_picked"`

	// Evicted lists selections removed to make room (last write wins).
	Evicted []ir.Selection `json:"evicted"`

	// Warnings lists REQUIRES targets that could not be auto-picked.
	Warnings []Warning `json:"warnings"`

	// AlreadySelected is true when the call found an existing selection
	// and changed nothing.
	AlreadySelected bool `json:"already_selected"`
}

// DeselectResult is the outcome of Deselect.
type DeselectResult struct {
	Removed bool `json:"removed"`
}

// EnsureResult is the outcome of EnsureRequired.
type EnsureResult struct {
	Added   []ir.Selection `json:"added"`
	Evicted []ir.Selection `json:"evicted"`
}

// Select adds activityID to the participant's program.
//
// The request is rejected with NOT_FOUND for an unknown participant or
// activity, FORBIDDEN when the role may not take the activity, and
// CONFLICT when it would evict a mandatory selection or pair with an
// excluded activity. A time conflict with an optional selection evicts
// that selection. REQUIRES targets are then picked automatically.
func (e *Engine) Select(ctx context.Context, participantID, activityID string) (*SelectResult, error) {
	unlock, err := e.locker.Lock(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("lock participant %s: %w", participantID, err)
	}
	defer unlock()

	var result *SelectResult
	err = e.repo.InTx(ctx, func(repo store.Repository) error {
		s, err := e.load(ctx, repo, participantID)
		if err != nil {
			return err
		}
		result, err = s.selectActivity(ctx, activityID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadySelected {
		e.log.Info("activity selected",
			"participant_id", participantID,
			"activity_id", activityID,
			"auto_picked", len(result.AutoPicked),
			"evicted", len(result.Evicted),
		)
	}
	for _, w := range result.Warnings {
		e.log.Warn(w.Message, "participant_id", participantID, "activity_id", w.ActivityID, "code", w.Code)
	}
	return result, nil
}

// Deselect removes activityID from the participant's program.
// Removing an activity that is not selected succeeds with Removed=false.
// Mandatory activities cannot be removed (FORBIDDEN).
func (e *Engine) Deselect(ctx context.Context, participantID, activityID string) (*DeselectResult, error) {
	unlock, err := e.locker.Lock(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("lock participant %s: %w", participantID, err)
	}
	defer unlock()

	result := &DeselectResult{}
	err = e.repo.InTx(ctx, func(repo store.Repository) error {
		s, err := e.load(ctx, repo, participantID)
		if err != nil {
			return err
		}
		if _, err := repo.GetActivity(ctx, activityID); err != nil {
			return fromStore("get activity", participantID, activityID, err)
		}
		if s.rules.IsMandatory(activityID) {
			return forbidden(participantID, activityID,
				"activity %q is mandatory for role %s and cannot be removed", activityID, s.participant.Role)
		}

		sel, ok, err := repo.FindSelection(ctx, participantID, activityID)
		if err != nil {
			return fromStore("find selection", participantID, activityID, err)
		}
		if !ok {
			return nil
		}
		if err := s.evict(ctx, sel); err != nil {
			return err
		}
		result.Removed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Removed {
		e.log.Info("activity deselected", "participant_id", participantID, "activity_id", activityID)
	}
	return result, nil
}

// EnsureRequired creates any missing selection for the participant's
// mandatory activities, in catalog order. Optional selections that collide
// with a mandatory activity, in time or through an EXCLUDES correlation,
// are evicted. Two colliding mandatory activities fail the call with
// CONFLICT.
func (e *Engine) EnsureRequired(ctx context.Context, participantID string) (*EnsureResult, error) {
	unlock, err := e.locker.Lock(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("lock participant %s: %w", participantID, err)
	}
	defer unlock()

	result, err := e.ensureRequired(ctx, e.repo, participantID)
	if err != nil {
		return nil, err
	}

	if len(result.Added) > 0 || len(result.Evicted) > 0 {
		e.log.Info("mandatory activities ensured",
			"participant_id", participantID,
			"added", len(result.Added),
			"evicted", len(result.Evicted),
		)
	}
	return result, nil
}

func (e *Engine) ensureRequired(ctx context.Context, repo store.Repository, participantID string) (*EnsureResult, error) {
	var result *EnsureResult
	err := repo.InTx(ctx, func(repo store.Repository) error {
		s, err := e.load(ctx, repo, participantID)
		if err != nil {
			return err
		}
		result, err = s.ensureRequired(ctx)
		return err
	})
	return result, err
}

// UpdateProgram replaces the participant's optional selections with
// desired and returns the resulting program in enrolment order.
//
// Unknown ids fail with NOT_FOUND and removing a mandatory activity fails
// with CONFLICT, both before anything changes. Removals are applied,
// mandatory selections re-asserted, then each addition goes through the
// full Select pipeline in caller order.
//
// By default a failing addition leaves earlier steps committed. With
// WithAtomicPrograms the whole call is rolled back instead.
func (e *Engine) UpdateProgram(ctx context.Context, participantID string, desired []string) ([]ir.Selection, error) {
	unlock, err := e.locker.Lock(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("lock participant %s: %w", participantID, err)
	}
	defer unlock()

	var program []ir.Selection
	run := func(repo store.Repository) error {
		var err error
		program, err = e.updateProgram(ctx, repo, participantID, desired)
		return err
	}

	if e.atomicPrograms {
		err = e.repo.InTx(ctx, run)
	} else {
		err = run(e.repo)
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("program updated", "participant_id", participantID, "selections", len(program))
	return program, nil
}

func (e *Engine) updateProgram(ctx context.Context, repo store.Repository, participantID string, desired []string) ([]ir.Selection, error) {
	s, err := e.load(ctx, repo, participantID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(desired))
	var order []string
	for _, id := range desired {
		if wanted[id] {
			continue
		}
		if _, ok := s.activities[id]; !ok {
			return nil, notFound(participantID, id, "activity %q does not exist", id)
		}
		wanted[id] = true
		order = append(order, id)
	}

	var toRemove []ir.Selection
	for _, sel := range s.selections {
		if wanted[sel.ActivityID] {
			continue
		}
		if s.rules.IsMandatory(sel.ActivityID) {
			return nil, conflict(participantID, sel.ActivityID,
				"activity %q is mandatory for role %s and cannot be removed", sel.ActivityID, s.participant.Role)
		}
		toRemove = append(toRemove, sel)
	}

	if len(toRemove) > 0 {
		err := repo.InTx(ctx, func(repo store.Repository) error {
			for _, sel := range toRemove {
				if err := repo.DeleteSelection(ctx, sel.ID); err != nil {
					return fromStore("remove selection", participantID, sel.ActivityID, err)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if _, err := e.ensureRequired(ctx, repo, participantID); err != nil {
		return nil, err
	}

	// Mandatory selections may have evicted kept activities, so additions
	// are decided against the program as it is now. An evicted id goes
	// back through Select and fails there on its mandatory clash.
	current, err := repo.ListSelections(ctx, participantID)
	if err != nil {
		return nil, fromStore("list selections", participantID, "", err)
	}
	selected := make(map[string]bool, len(current))
	for _, sel := range current {
		selected[sel.ActivityID] = true
	}

	for _, id := range order {
		if selected[id] {
			continue
		}
		err := repo.InTx(ctx, func(repo store.Repository) error {
			s, err := e.load(ctx, repo, participantID)
			if err != nil {
				return err
			}
			_, err = s.selectActivity(ctx, id)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	program, err := repo.ListSelections(ctx, participantID)
	if err != nil {
		return nil, fromStore("list selections", participantID, "", err)
	}
	return program, nil
}

// Program returns the participant's selections in enrolment order.
func (e *Engine) Program(ctx context.Context, participantID string) ([]ir.Selection, error) {
	if _, err := e.repo.GetParticipant(ctx, participantID); err != nil {
		return nil, fromStore("get participant", participantID, "", err)
	}
	program, err := e.repo.ListSelections(ctx, participantID)
	if err != nil {
		return nil, fromStore("list selections", participantID, "", err)
	}
	return program, nil
}

// Rules returns the RuleSet compiled for the participant's role against
// the current catalog.
func (e *Engine) Rules(ctx context.Context, participantID string) (ir.RuleSet, error) {
	s, err := e.load(ctx, e.repo, participantID)
	if err != nil {
		return ir.RuleSet{}, err
	}
	return s.rules, nil
}

// session is the state one operation decides on: the participant, the
// compiled rules, the catalog and the live program. Mutations go through
// the session so later decisions in the same operation see them.
type session struct {
	e            *Engine
	repo         store.Repository
	participant  ir.Participant
	rules        ir.RuleSet
	activities   map[string]ir.Activity
	catalog      []ir.Activity
	correlations []ir.Correlation
	selections   []ir.Selection
}

func (e *Engine) load(ctx context.Context, repo store.Repository, participantID string) (*session, error) {
	p, err := repo.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, fromStore("get participant", participantID, "", err)
	}

	activities, err := repo.ListActivities(ctx)
	if err != nil {
		return nil, fromStore("list activities", participantID, "", err)
	}
	correlations, err := repo.ListCorrelations(ctx, store.CorrelationFilter{})
	if err != nil {
		return nil, fromStore("list correlations", participantID, "", err)
	}
	selections, err := repo.ListSelections(ctx, participantID)
	if err != nil {
		return nil, fromStore("list selections", participantID, "", err)
	}

	s := &session{
		e:            e,
		repo:         repo,
		participant:  p,
		rules:        compiler.CompileRules(activities, correlations, p.Role),
		activities:   make(map[string]ir.Activity, len(activities)),
		catalog:      activities,
		correlations: correlations,
		selections:   selections,
	}
	for _, a := range activities {
		s.activities[a.ID] = a
	}
	return s, nil
}

func (s *session) find(activityID string) (ir.Selection, bool) {
	for _, sel := range s.selections {
		if sel.ActivityID == activityID {
			return sel, true
		}
	}
	return ir.Selection{}, false
}

func (s *session) has(activityID string) bool {
	_, ok := s.find(activityID)
	return ok
}

func (s *session) bookings() []Booking {
	out := make([]Booking, 0, len(s.selections))
	for _, sel := range s.selections {
		if a, ok := s.activities[sel.ActivityID]; ok {
			out = append(out, Booking{Selection: sel, Activity: a})
		}
	}
	return out
}

func (s *session) mandatoryBookings() []Booking {
	return slices.DeleteFunc(s.bookings(), func(b Booking) bool {
		return !s.rules.IsMandatory(b.Activity.ID)
	})
}

// excludedBy returns the role-matching EXCLUDES correlation that pairs
// activityID with a currently selected activity not listed in ignore.
func (s *session) excludedBy(activityID string, ignore []string) (ir.Correlation, bool) {
	for _, c := range s.correlations {
		if c.Rule != ir.RuleExcludes || c.IsRoleLevel() || !c.Touches(activityID) {
			continue
		}
		if !compiler.RoleMatches(c, s.participant.Role) {
			continue
		}
		other := c.Other(activityID)
		if other == activityID || slices.Contains(ignore, other) {
			continue
		}
		if s.has(other) {
			return c, true
		}
	}
	return ir.Correlation{}, false
}

// autoPickAllowed reports whether some correlation from source to target
// allows auto-picking target for the participant's role.
func (s *session) autoPickAllowed(source, target string) bool {
	for _, c := range s.correlations {
		if c.SourceActivityID == source && c.TargetActivityID == target &&
			compiler.AutoPickAllowed(c, s.participant.Role) {
			return true
		}
	}
	return false
}

func (s *session) create(ctx context.Context, activityID string) (ir.Selection, error) {
	sel, err := s.repo.CreateSelection(ctx, ir.Selection{
		ID:            s.e.ids.Generate(),
		ParticipantID: s.participant.ID,
		ActivityID:    activityID,
		EnrolledAt:    s.e.now(),
	})
	if err != nil {
		return ir.Selection{}, fromStore("create selection", s.participant.ID, activityID, err)
	}
	s.selections = append(s.selections, sel)
	return sel, nil
}

func (s *session) evict(ctx context.Context, sel ir.Selection) error {
	if err := s.repo.DeleteSelection(ctx, sel.ID); err != nil {
		return fromStore("delete selection", s.participant.ID, sel.ActivityID, err)
	}
	s.selections = slices.DeleteFunc(s.selections, func(x ir.Selection) bool {
		return x.ID == sel.ID
	})
	return nil
}

func (s *session) selectActivity(ctx context.Context, activityID string) (*SelectResult, error) {
	pid := s.participant.ID

	activity, ok := s.activities[activityID]
	if !ok {
		return nil, notFound(pid, activityID, "activity %q does not exist", activityID)
	}
	if s.rules.IsForbidden(activityID) {
		return nil, forbidden(pid, activityID, "activity %q is not open to role %s", activityID, s.participant.Role)
	}
	if existing, ok := s.find(activityID); ok {
		return &SelectResult{
			Selection:       existing,
			AutoPicked:      []ir.Selection{},
			Evicted:         []ir.Selection{},
			Warnings:        []Warning{},
			AlreadySelected: true,
		}, nil
	}

	if clash, ok := FindConflict(activity, s.mandatoryBookings()); ok {
		err := conflict(pid, activityID, "activity %q overlaps mandatory activity %q", activityID, clash.Activity.ID)
		err.Details = map[string]string{"mandatory_activity_id": clash.Activity.ID}
		return nil, err
	}
	clashes := FindConflicts(activity, s.bookings())

	if c, ok := s.excludedBy(activityID, bookingIDs(clashes)); ok {
		other := c.Other(activityID)
		err := conflict(pid, activityID, "activity %q excludes selected activity %q", activityID, other)
		err.CorrelationID = c.ID
		err.Details = map[string]string{"excluded_activity_id": other}
		return nil, err
	}

	result := &SelectResult{
		AutoPicked: []ir.Selection{},
		Evicted:    []ir.Selection{},
		Warnings:   []Warning{},
	}

	for _, clash := range clashes {
		if err := s.evict(ctx, clash.Selection); err != nil {
			return nil, err
		}
		result.Evicted = append(result.Evicted, clash.Selection)
	}

	sel, err := s.create(ctx, activityID)
	if err != nil {
		return nil, err
	}
	result.Selection = sel

	visited := map[string]bool{activityID: true}
	protected := map[string]bool{activityID: true}
	quota := NewQuotaEnforcer(s.e.maxSteps)
	if err := s.autoPick(ctx, activityID, visited, protected, quota, result); err != nil {
		return nil, err
	}

	return result, nil
}

// autoPick follows REQUIRES edges from source depth-first. Targets are
// visited once per Select call, which also stops cycles.
func (s *session) autoPick(
	ctx context.Context,
	source string,
	visited, protected map[string]bool,
	quota *QuotaEnforcer,
	result *SelectResult,
) error {
	for _, target := range s.rules.Dependencies(source).Required {
		if visited[target] || !s.autoPickAllowed(source, target) {
			continue
		}
		visited[target] = true

		if s.has(target) {
			continue
		}

		if err := quota.Check(s.participant.ID, target); err != nil {
			return err
		}

		activity, ok := s.activities[target]
		if !ok {
			continue
		}

		if s.rules.IsForbidden(target) {
			result.Warnings = append(result.Warnings, Warning{
				Code:       WarnAutoPickForbidden,
				ActivityID: target,
				Message:    fmt.Sprintf("required activity %q not picked: not open to role %s", target, s.participant.Role),
			})
			continue
		}

		clashes := FindConflicts(activity, s.bookings())
		if blocker, ok := s.firstProtected(clashes, protected); ok {
			result.Warnings = append(result.Warnings, Warning{
				Code:       WarnAutoPickConflict,
				ActivityID: target,
				Message:    fmt.Sprintf("required activity %q not picked: overlaps %q", target, blocker),
			})
			continue
		}

		if c, ok := s.excludedBy(target, bookingIDs(clashes)); ok {
			result.Warnings = append(result.Warnings, Warning{
				Code:       WarnAutoPickExcluded,
				ActivityID: target,
				Message:    fmt.Sprintf("required activity %q not picked: excluded by %q", target, c.ID),
			})
			continue
		}

		for _, clash := range clashes {
			if err := s.evict(ctx, clash.Selection); err != nil {
				return err
			}
			result.Evicted = append(result.Evicted, clash.Selection)
		}

		sel, err := s.create(ctx, target)
		if err != nil {
			return err
		}
		result.AutoPicked = append(result.AutoPicked, sel)
		protected[target] = true

		if err := s.autoPick(ctx, target, visited, protected, quota, result); err != nil {
			return err
		}
	}
	return nil
}

// firstProtected returns the first clash that auto-pick may not evict:
// an activity picked earlier in this call or a mandatory one.
func (s *session) firstProtected(clashes []Booking, protected map[string]bool) (string, bool) {
	for _, clash := range clashes {
		if protected[clash.Activity.ID] || s.rules.IsMandatory(clash.Activity.ID) {
			return clash.Activity.ID, true
		}
	}
	return "", false
}

func (s *session) ensureRequired(ctx context.Context) (*EnsureResult, error) {
	pid := s.participant.ID
	result := &EnsureResult{Added: []ir.Selection{}, Evicted: []ir.Selection{}}

	for _, a := range s.catalog {
		if !s.rules.IsMandatory(a.ID) || s.has(a.ID) {
			continue
		}

		if clash, ok := FindConflict(a, s.mandatoryBookings()); ok {
			err := conflict(pid, a.ID, "mandatory activities %q and %q overlap", a.ID, clash.Activity.ID)
			err.Details = map[string]string{"mandatory_activity_id": clash.Activity.ID}
			return nil, err
		}
		for _, clash := range FindConflicts(a, s.bookings()) {
			if err := s.evict(ctx, clash.Selection); err != nil {
				return nil, err
			}
			result.Evicted = append(result.Evicted, clash.Selection)
		}

		for {
			c, ok := s.excludedBy(a.ID, nil)
			if !ok {
				break
			}
			other := c.Other(a.ID)
			if s.rules.IsMandatory(other) {
				err := conflict(pid, a.ID, "mandatory activities %q and %q exclude each other", a.ID, other)
				err.CorrelationID = c.ID
				return nil, err
			}
			sel, _ := s.find(other)
			if err := s.evict(ctx, sel); err != nil {
				return nil, err
			}
			result.Evicted = append(result.Evicted, sel)
		}

		sel, err := s.create(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		result.Added = append(result.Added, sel)
	}

	return result, nil
}
