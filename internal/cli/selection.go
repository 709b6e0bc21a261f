package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/agenda/internal/engine"
	"github.com/roach88/agenda/internal/ir"
)

// DefaultEnsureConcurrency is the default worker count of ensure-required.
const DefaultEnsureConcurrency = 4

func selectionIDs(sels []ir.Selection) []string {
	ids := make([]string, len(sels))
	for i, s := range sels {
		ids[i] = s.ActivityID
	}
	return ids
}

func printIDs(w io.Writer, label string, ids []string) {
	if len(ids) > 0 {
		fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(ids, ", "))
	}
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <participant-id> <activity-id>",
		Short: "Add an activity to a participant's program",
		Long: `Add an activity to a participant's program.

Optional selections that overlap the activity are evicted. Activities it
REQUIRES are picked automatically when the role allows it and they fit;
skipped targets are reported as warnings.

Exit codes:
  0 - Selected (or already selected)
  1 - Rejected (not found, forbidden, conflict, auto-pick quota)
  2 - Command error`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Engine.Select(cmd.Context(), args[0], args[1])
			if err != nil {
				return reportEngineError(formatter, err)
			}

			if rootOpts.Format == "json" {
				return formatter.Success(res)
			}

			w := cmd.OutOrStdout()
			if res.AlreadySelected {
				fmt.Fprintf(w, "= %s already selected for %s\n", args[1], args[0])
				return nil
			}
			fmt.Fprintf(w, "✓ Selected %s for %s\n", args[1], args[0])
			printIDs(w, "auto-picked", selectionIDs(res.AutoPicked))
			printIDs(w, "evicted", selectionIDs(res.Evicted))
			for _, warn := range res.Warnings {
				fmt.Fprintf(w, "  warning [%s] %s\n", warn.Code, warn.Message)
			}
			return nil
		},
	}
}

// NewDeselectCommand creates the deselect command.
func NewDeselectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "deselect <participant-id> <activity-id>",
		Short:         "Remove an activity from a participant's program",
		Long:          "Remove an activity from a participant's program. Mandatory activities cannot be removed.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Engine.Deselect(cmd.Context(), args[0], args[1])
			if err != nil {
				return reportEngineError(formatter, err)
			}

			if rootOpts.Format == "json" {
				return formatter.Success(res)
			}
			if res.Removed {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s from %s\n", args[1], args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "= %s was not selected for %s\n", args[1], args[0])
			}
			return nil
		},
	}
}

// EnsureOutcome is one participant's ensure-required result.
type EnsureOutcome struct {
	ParticipantID string    `json:"participant_id"`
	Added         []string  `json:"added"`
	Evicted       []string  `json:"evicted"`
	Error         *CLIError `json:"error,omitempty"`
}

// EnsureSummary is the output of ensure-required.
type EnsureSummary struct {
	Participants []EnsureOutcome `json:"participants"`
	Rejected     int             `json:"rejected"`
}

// NewEnsureRequiredCommand creates the ensure-required command.
func NewEnsureRequiredCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool
	var concurrency int

	cmd := &cobra.Command{
		Use:   "ensure-required [participant-id...]",
		Short: "Add every mandatory activity to participants' programs",
		Long: `Add every activity mandatory for the participant's role.

Optional selections that collide with a mandatory activity, in time or
through EXCLUDES, are evicted. Two mandatory activities that collide
with each other reject the participant with CONFLICT.

With --all every registered participant is processed, several at a time.
A rejected participant does not stop the others.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			if all == (len(args) > 0) {
				_ = formatter.Error(ErrCodeBadInput, "give participant ids or --all, not both", nil)
				return NewExitError(ExitCommandError, "give participant ids or --all, not both")
			}
			if concurrency < 1 {
				_ = formatter.Error(ErrCodeBadInput, "--concurrency must be at least 1", nil)
				return NewExitError(ExitCommandError, "--concurrency must be at least 1")
			}

			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ids := args
			if all {
				participants, err := app.Store.ListParticipants(cmd.Context())
				if err != nil {
					return reportEngineError(formatter, err)
				}
				ids = make([]string, len(participants))
				for i, p := range participants {
					ids[i] = p.ID
				}
			}

			summary, err := ensureAll(cmd, app.Engine, ids, concurrency)
			if err != nil {
				return reportEngineError(formatter, err)
			}

			if rootOpts.Format == "json" {
				if err := formatter.Success(summary); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				for _, o := range summary.Participants {
					if o.Error != nil {
						fmt.Fprintf(w, "✗ %s: [%s] %s\n", o.ParticipantID, o.Error.Code, o.Error.Message)
						continue
					}
					fmt.Fprintf(w, "✓ %s\n", o.ParticipantID)
					printIDs(w, "added", o.Added)
					printIDs(w, "evicted", o.Evicted)
				}
			}

			if summary.Rejected > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d participant(s) rejected", summary.Rejected))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "process every registered participant")
	cmd.Flags().IntVar(&concurrency, "concurrency", DefaultEnsureConcurrency, "participants processed in parallel")

	return cmd
}

// ensureAll runs EnsureRequired for each id with at most limit in flight.
// Engine rejections are recorded per participant; any other error cancels
// the remaining work and is returned.
func ensureAll(cmd *cobra.Command, eng *engine.Engine, ids []string, limit int) (*EnsureSummary, error) {
	outcomes := make([]EnsureOutcome, len(ids))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(limit)

	for i, id := range ids {
		g.Go(func() error {
			res, err := eng.EnsureRequired(ctx, id)
			if err != nil {
				var engErr *engine.Error
				if !errors.As(err, &engErr) {
					return err
				}
				outcomes[i] = EnsureOutcome{
					ParticipantID: id,
					Added:         []string{},
					Evicted:       []string{},
					Error:         &CLIError{Code: codeForKind(engErr.Kind), Message: engErr.Message, Details: string(engErr.Kind)},
				}
				return nil
			}
			outcomes[i] = EnsureOutcome{
				ParticipantID: id,
				Added:         selectionIDs(res.Added),
				Evicted:       selectionIDs(res.Evicted),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &EnsureSummary{Participants: outcomes}
	for _, o := range outcomes {
		if o.Error != nil {
			summary.Rejected++
		}
	}
	return summary, nil
}

// ProgramOutput is the output of the program commands.
type ProgramOutput struct {
	ParticipantID string         `json:"participant_id"`
	Activities    []string       `json:"activities"`
	Selections    []ir.Selection `json:"selections"`
}

// NewProgramCommand creates the program command group.
func NewProgramCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "program",
		Short: "Show or replace a participant's program",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show <participant-id>",
		Short:         "Show a participant's selections in enrolment order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			program, err := app.Engine.Program(cmd.Context(), args[0])
			if err != nil {
				return reportEngineError(formatter, err)
			}
			return outputProgram(rootOpts, formatter, cmd, args[0], program)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "update <participant-id> [activity-id...]",
		Short: "Replace a participant's program with the given activities",
		Long: `Replace a participant's program with the given activities.

Selections not listed are removed, mandatory activities are re-asserted,
then each listed activity is selected in order. Listing no activities
leaves only the mandatory ones. Removing a mandatory activity is a
CONFLICT. With --atomic-programs a failed addition rolls back the whole
update.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			program, err := app.Engine.UpdateProgram(cmd.Context(), args[0], args[1:])
			if err != nil {
				return reportEngineError(formatter, err)
			}
			return outputProgram(rootOpts, formatter, cmd, args[0], program)
		},
	})

	return cmd
}

func outputProgram(opts *RootOptions, f *OutputFormatter, cmd *cobra.Command, participantID string, program []ir.Selection) error {
	out := ProgramOutput{
		ParticipantID: participantID,
		Activities:    selectionIDs(program),
		Selections:    program,
	}
	if opts.Format == "json" {
		return f.Success(out)
	}

	w := cmd.OutOrStdout()
	if len(program) == 0 {
		fmt.Fprintf(w, "%s: empty program\n", participantID)
		return nil
	}
	fmt.Fprintf(w, "%s:\n", participantID)
	for _, s := range program {
		fmt.Fprintf(w, "  %3d  %s\n", s.Seq, s.ActivityID)
	}
	return nil
}

// RulesOutput is the output of the rules command.
type RulesOutput struct {
	ParticipantID string     `json:"participant_id"`
	Fingerprint   string     `json:"fingerprint"`
	Rules         ir.RuleSet `json:"rules"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules <participant-id>",
		Short: "Show the rule set compiled for a participant's role",
		Long: `Show the rule set compiled for the participant's role against the
stored catalog: mandatory and forbidden activities, dependencies and
warnings. The fingerprint identifies the exact rules the engine applies.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			rs, err := app.Engine.Rules(cmd.Context(), args[0])
			if err != nil {
				return reportEngineError(formatter, err)
			}
			fp, err := rs.Fingerprint()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to fingerprint rules", err)
			}

			if rootOpts.Format == "json" {
				return formatter.Success(RulesOutput{ParticipantID: args[0], Fingerprint: fp, Rules: rs})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%s) rules %s\n", args[0], rs.Role(), shortHash(fp))
			fmt.Fprintf(w, "  mandatory: [%s]\n", strings.Join(rs.MandatoryIDs(), " "))
			fmt.Fprintf(w, "  forbidden: [%s]\n", strings.Join(rs.ForbiddenIDs(), " "))

			for _, src := range rs.DependencySources() {
				d := rs.Dependencies(src)
				fmt.Fprintf(w, "  %s: requires [%s] excludes [%s]\n",
					src, strings.Join(d.Required, " "), strings.Join(d.Excluded, " "))
			}
			for _, warn := range rs.Warnings() {
				fmt.Fprintf(w, "  warning [%s] %s\n", warn.Code, warn.Message)
			}
			return nil
		},
	}
}
