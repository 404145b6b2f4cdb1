package main

import (
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the per-document string cache",
}

var (
	cacheDocID  string
	cacheOutput string
	exportPath  string
)

var cacheBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Enumerate the document's strings and persist the cache artifact",
	Long: `Build the string cache for a document.

String enumeration runs through the host and takes minutes on large
binaries. The artifact is written next to the document's save file (or
into the configured cache directory) and replaced atomically, so an
interrupted build never corrupts an existing cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newCLILogger()
		eng, _, err := newEngine(logger)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Stop(5 * time.Second) }()

		built, _, err := eng.BuildStringCache(cmd.Context(), cacheDocID, false)
		if err != nil {
			return err
		}
		return printResult(built, cacheOutput)
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show string cache state for a document",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newCLILogger()
		eng, _, err := newEngine(logger)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Stop(5 * time.Second) }()

		stats, err := eng.CacheStats(cmd.Context(), cacheDocID)
		if err != nil {
			return err
		}
		return printResult(stats, cacheOutput)
	},
}

var cacheExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cached strings as zstd-compressed JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newCLILogger()
		eng, _, err := newEngine(logger)
		if err != nil {
			return err
		}
		defer func() { _ = eng.Stop(5 * time.Second) }()

		res, err := eng.ExportStrings(cmd.Context(), cacheDocID, exportPath)
		if err != nil {
			return err
		}
		return printResult(res, cacheOutput)
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheBuildCmd, cacheStatsCmd, cacheExportCmd)

	cacheCmd.PersistentFlags().StringVar(&cacheDocID, "doc", "",
		"Document ID (defaults to the current document)")
	cacheCmd.PersistentFlags().StringVarP(&cacheOutput, "output", "o", "json",
		"Output format: json or yaml")
	cacheExportCmd.Flags().StringVar(&exportPath, "out", "strings.jsonl.zst",
		"Export file path")
}
