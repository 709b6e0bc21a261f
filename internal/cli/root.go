package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/agenda/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	EnvFile    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the agenda CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "agenda - activity selection and correlation engine",
		Long: `Manage event programs: which activities each participant attends.

Catalogs (activities, time windows and REQUIRES/EXCLUDES/ALL correlations)
are written in CUE, compiled per participant role and imported into a
SQLite store. Selections are checked against the compiled rules, with
time conflicts evicting optional selections and REQUIRES targets picked
automatically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and engine logs on stderr")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigFile, "config", "", "YAML config file")
	pf.StringVar(&opts.EnvFile, "env-file", config.DefaultEnvFile, "dotenv file loaded into the environment")

	// Bound into config.Load by name; explicit flags override env and file.
	pf.String("db", config.DefaultDB, "SQLite database path")
	pf.String("log-mode", config.DefaultLogMode, "log encoder (dev|prod)")
	pf.String("redis-addr", "", "Redis address for cross-process participant locks")
	pf.Duration("lock-ttl", config.DefaultLockTTL, "Redis lock TTL")
	pf.Int("max-steps", config.DefaultMaxSteps, "auto-pick quota per selection")
	pf.Bool("atomic-programs", false, "roll back a program update entirely when one addition fails")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewParticipantCommand(opts))
	cmd.AddCommand(NewSelectCommand(opts))
	cmd.AddCommand(NewDeselectCommand(opts))
	cmd.AddCommand(NewEnsureRequiredCommand(opts))
	cmd.AddCommand(NewProgramCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
