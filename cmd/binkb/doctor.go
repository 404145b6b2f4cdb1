package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var doctorOutput string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration and host connectivity issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newCLILogger()
		eng, _, err := newEngine(logger)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Stop(5 * time.Second) }()

		diag := eng.Doctor(cmd.Context())
		if err := printResult(diag, doctorOutput); err != nil {
			return err
		}
		if !diag.Healthy {
			return fmt.Errorf("doctor found failing checks")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVarP(&doctorOutput, "output", "o", "json",
		"Output format: json or yaml")
}
