package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/agenda/internal/compiler"
	"github.com/roach88/agenda/internal/ir"
)

// NewParticipantCommand creates the participant command group.
func NewParticipantCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "participant",
		Short: "Register and list participants",
	}

	cmd.AddCommand(newParticipantAddCommand(rootOpts))
	cmd.AddCommand(newParticipantListCommand(rootOpts))

	return cmd
}

func newParticipantAddCommand(rootOpts *RootOptions) *cobra.Command {
	var role, name string

	cmd := &cobra.Command{
		Use:   "add <participant-id>",
		Short: "Register a participant or change its role",
		Long: `Register a participant with one role.

Re-adding an existing id updates its role and name and keeps its
selections. Run ensure-required afterwards to apply the new role's
mandatory activities.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			r, err := ir.ParseRole(role)
			if err != nil {
				_ = formatter.Error(ErrCodeBadInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid role", err)
			}
			p := ir.Participant{ID: args[0], Role: r, Name: name}
			if err := compiler.ValidateParticipant(p); err != nil {
				_ = formatter.Error(ErrCodeBadInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid participant", err)
			}

			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.SaveParticipant(cmd.Context(), p); err != nil {
				return reportEngineError(formatter, err)
			}

			if rootOpts.Format == "json" {
				return formatter.Success(p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Participant %s (%s)\n", p.ID, p.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(ir.RoleParticipant), "participant role")
	cmd.Flags().StringVar(&name, "name", "", "display name")

	return cmd
}

func newParticipantListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List registered participants",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			participants, err := app.Store.ListParticipants(cmd.Context())
			if err != nil {
				return reportEngineError(formatter, err)
			}

			if rootOpts.Format == "json" {
				return formatter.Success(participants)
			}
			w := cmd.OutOrStdout()
			if len(participants) == 0 {
				fmt.Fprintln(w, "No participants.")
				return nil
			}
			for _, p := range participants {
				if p.Name != "" {
					fmt.Fprintf(w, "%-20s %-14s %s\n", p.ID, p.Role, p.Name)
				} else {
					fmt.Fprintf(w, "%-20s %s\n", p.ID, p.Role)
				}
			}
			return nil
		},
	}
}
