package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/agenda/internal/compiler"
	"github.com/roach88/agenda/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Role   string // compile one role only
	Output string // output file path
}

// CompiledRuleSet is one role's rules plus their fingerprint.
type CompiledRuleSet struct {
	Role        ir.ParticipantRole `json:"role"`
	Fingerprint string             `json:"fingerprint"`
	Rules       ir.RuleSet         `json:"rules"`
}

// CompilationResult holds the per-role rule sets of a catalog.
type CompilationResult struct {
	CatalogHash  string            `json:"catalog_hash"`
	Activities   int               `json:"activities"`
	Correlations int               `json:"correlations"`
	RuleSets     []CompiledRuleSet `json:"rule_sets"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <catalog-dir>",
		Short: "Compile a CUE catalog into per-role rule sets",
		Long: `Compile a CUE catalog into the rule set seen by each participant role.

The catalog is validated first. Each rule set lists the role's mandatory
and forbidden activities, REQUIRES/EXCLUDES dependencies and content
warnings, and carries a fingerprint that changes whenever the rules do.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Role, "role", "", "compile for one role only")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, catalogDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	roles := ir.AllRoles()
	if opts.Role != "" {
		role, err := ir.ParseRole(opts.Role)
		if err != nil {
			_ = formatter.Error(ErrCodeBadInput, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid role", err)
		}
		roles = []ir.ParticipantRole{role}
	}

	cat, err := loadValidCatalog(formatter, catalogDir)
	if err != nil {
		return err
	}

	hash, err := ir.CatalogHash(*cat)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash catalog", err)
	}

	result := CompilationResult{
		CatalogHash:  hash,
		Activities:   len(cat.Activities),
		Correlations: len(cat.Correlations),
		RuleSets:     make([]CompiledRuleSet, 0, len(roles)),
	}
	for _, role := range roles {
		formatter.VerboseLog("Compiling rules for %s", role)
		rs := compiler.CompileCatalogRules(cat, role)
		fp, err := rs.Fingerprint()
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to fingerprint %s rules", role), err)
		}
		result.RuleSets = append(result.RuleSets, CompiledRuleSet{Role: role, Fingerprint: fp, Rules: rs})
	}

	if opts.Output != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode rule sets", err)
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Compiled %d activities, %d correlations (catalog %s)\n",
		result.Activities, result.Correlations, shortHash(hash))
	for _, rs := range result.RuleSets {
		fmt.Fprintf(w, "  %-14s %s  mandatory=[%s] forbidden=[%s] warnings=%d\n",
			rs.Role, shortHash(rs.Fingerprint),
			strings.Join(rs.Rules.MandatoryIDs(), " "),
			strings.Join(rs.Rules.ForbiddenIDs(), " "),
			len(rs.Rules.Warnings()))
	}
	return nil
}

// loadCatalog compiles dir, reporting failures through f. A missing
// directory is a command error; a catalog that does not compile is a
// failure.
func loadCatalog(f *OutputFormatter, dir string) (*ir.Catalog, error) {
	f.VerboseLog("Loading catalog from %s", dir)

	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			msg := fmt.Sprintf("catalog directory not found: %s", dir)
			_ = f.Error(ErrCodeLoad, msg, nil)
			return nil, NewExitError(ExitCommandError, msg)
		}
		_ = f.Error(ErrCodeLoad, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "cannot read catalog directory", err)
	}

	cat, err := compiler.LoadCatalogDir(dir)
	if err != nil {
		var details any
		var cErr *compiler.CompileError
		if errors.As(err, &cErr) {
			d := map[string]any{"field": cErr.Field}
			if cErr.Pos.IsValid() {
				d["file"] = cErr.Pos.Filename()
				d["line"] = cErr.Pos.Line()
			}
			details = d
		}
		_ = f.Error(ErrCodeLoad, err.Error(), details)
		return nil, WrapExitError(ExitFailure, "catalog failed to compile", err)
	}

	f.VerboseLog("Loaded %d activities, %d correlations", len(cat.Activities), len(cat.Correlations))
	return cat, nil
}

// loadValidCatalog is loadCatalog followed by structural validation.
func loadValidCatalog(f *OutputFormatter, dir string) (*ir.Catalog, error) {
	cat, err := loadCatalog(f, dir)
	if err != nil {
		return nil, err
	}
	if errs := compiler.ValidateCatalog(cat); len(errs) > 0 {
		_ = f.Error(ErrCodeInvalid, fmt.Sprintf("catalog has %d validation error(s)", len(errs)), errs)
		return nil, NewExitError(ExitFailure, "invalid catalog")
	}
	return cat, nil
}

func shortHash(h string) string {
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[i+1:]
	}
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
