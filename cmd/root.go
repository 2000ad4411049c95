package cmd

import (
	"fmt"
	"os"

	"vitals-manager/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "vitals-manager",
	Short: "Vitals Manager Service",
	Long: `Vitals Manager ingests wearable health data into a local record store.
It reconciles the vendor's live sync feed and bulk export archives into one
consistent set of daily and high-resolution records.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Report the failure through the application's standard logger.
		// Console format matches CLI expectations and gives readable
		// ISO8601 timestamps instead of epoch seconds.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			// Log the error with structured logger (Console encoding will make it pretty)
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			// Absolute fallback if logger creation fails (rare)
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
