package main

import (
	"binkb/internal/version"

	"github.com/spf13/cobra"
)

var (
	// fixtureFlags lists TOML fixture files to load as documents when no
	// live host session is attached.
	fixtureFlags []string
)

var rootCmd = &cobra.Command{
	Use:   "binkb",
	Short: "binkb - Binary Knowledge Backend",
	Long: `binkb (Binary Knowledge Backend) is a query and annotation layer over a
host disassembler's analysis session. It resolves addresses and names,
maintains a persistent string cache, walks call graphs, and exposes the
whole surface to LLM tooling as an MCP server.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("binkb version {{.Version}}\n")
	rootCmd.PersistentFlags().StringArrayVar(&fixtureFlags, "fixture", nil,
		"TOML fixture file to load as a document (repeatable; used when no host session is attached)")
}
