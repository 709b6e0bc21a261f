package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/agenda/internal/compiler"
	"github.com/roach88/agenda/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                                    `json:"valid"`
	CatalogHash string                                  `json:"catalog_hash,omitempty"`
	Errors      []compiler.ValidationError              `json:"errors,omitempty"`
	Warnings    map[ir.ParticipantRole][]ir.RuleWarning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Validate a catalog and report rule warnings",
		Long: `Validate a CUE catalog without importing it.

Checks struct constraints, time windows, duplicate ids and dangling
correlation references. A valid catalog is then compiled for every role
and the content warnings are listed: REQUIRES cycles, correlations to
activities the role cannot take, and mandatory activities that overlap.

Warnings never fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, catalogDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cat, err := loadCatalog(formatter, catalogDir)
	if err != nil {
		return err
	}

	if errs := compiler.ValidateCatalog(cat); len(errs) > 0 {
		result := ValidationResult{Valid: false, Errors: errs}
		if opts.Format == "json" {
			if err := formatter.Success(result); err != nil {
				return err
			}
		} else {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "✗ Catalog invalid: %d error(s)\n", len(errs))
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e.Error())
			}
		}
		return NewExitError(ExitFailure, "invalid catalog")
	}

	report, err := compiler.AnalyzeCatalog(cat)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to analyze catalog", err)
	}

	result := ValidationResult{
		Valid:       true,
		CatalogHash: report.CatalogHash,
		Warnings:    report.Warnings,
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Catalog valid (%s)\n", shortHash(report.CatalogHash))

	roles := make([]ir.ParticipantRole, 0, len(report.Warnings))
	for role := range report.Warnings {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	for _, role := range roles {
		fmt.Fprintf(w, "  %s:\n", role)
		for _, warn := range report.Warnings[role] {
			fmt.Fprintf(w, "    warning [%s] %s\n", warn.Code, warn.Message)
		}
	}
	return nil
}
