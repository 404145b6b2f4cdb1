package main

import (
	"os"
	"time"

	"binkb/internal/logging"

	"github.com/spf13/cobra"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show binkb status: documents, cache state, job runner occupancy",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newCLILogger()
		eng, _, err := newEngine(logger)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Stop(5 * time.Second) }()

		status, err := eng.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(status, statusOutput)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "json",
		"Output format: json or yaml")
}

// newCLILogger keeps interactive commands quiet unless something is
// actually wrong.
func newCLILogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.WarnLevel,
		Output: os.Stderr,
	})
}
