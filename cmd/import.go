package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vitals-manager/feature/ingest"
)

var (
	// Flags for the import command
	importFile   string
	importObject string
)

// importCmd applies a vendor export archive to the record store.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a vendor export archive (zip of CSVs)",
	Long: `Imports a bulk export archive into the record store.

The archive can be a local zip file (--file) or an object in the configured
export bucket (--object). An archive whose fingerprint matches the persisted
checkpoint has already been applied and is skipped.

Examples:
  # Import a downloaded export
  vitals-manager import --file ~/Downloads/export.zip

  # Import straight from the export bucket
  vitals-manager import --object drops/export-2024-03.zip`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "Path to a local export zip")
	importCmd.Flags().StringVar(&importObject, "object", "", "Object name in the export bucket")
	RootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if importFile == "" && importObject == "" {
		return fmt.Errorf("either --file or --object is required")
	}
	if importFile != "" && importObject != "" {
		return fmt.Errorf("--file and --object are mutually exclusive")
	}

	env, err := setup(nil)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var run ingest.Run
	if importFile != "" {
		run, err = env.service.ImportArchive(ctx, importFile)
	} else {
		run, err = env.service.ImportArchiveObject(ctx, importObject)
	}
	if err != nil {
		return fmt.Errorf("archive import failed: %w", err)
	}

	logRunReport(env.logger, run)
	return nil
}
