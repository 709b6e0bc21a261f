package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/store"
)

// ImportSummary is the output of the import command.
type ImportSummary struct {
	store.ImportResult
	CatalogHash string `json:"catalog_hash"`
	DB          string `json:"db"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <catalog-dir>",
		Short: "Validate a catalog and load it into the store",
		Long: `Validate a CUE catalog and replace the stored catalog with it.

Activity types, activities and correlations are upserted; activities no
longer in the catalog are removed together with every selection of them.
Participants and their other selections are kept.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runImport(opts *RootOptions, catalogDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cat, err := loadValidCatalog(formatter, catalogDir)
	if err != nil {
		return err
	}
	hash, err := ir.CatalogHash(*cat)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash catalog", err)
	}

	app, err := openApp(cmd.Context(), opts, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Store.ImportCatalog(cmd.Context(), cat)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "import failed", err)
	}

	summary := ImportSummary{ImportResult: res, CatalogHash: hash, DB: app.Config.DB}
	if opts.Format == "json" {
		return formatter.Success(summary)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"✓ Imported %d activity type(s), %d activities, %d correlation(s) into %s (%d removed)\n",
		res.ActivityTypes, res.Activities, res.Correlations, app.Config.DB, res.RemovedActivities)
	return nil
}
