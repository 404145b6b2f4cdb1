package main

import (
	"context"
	"os"
	"time"

	"binkb/internal/logging"
	"binkb/internal/mcp"
	"binkb/internal/version"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for LLM client integration",
	Long: `Start the Model Context Protocol (MCP) server.

The server lets MCP clients query the host disassembler session: resolve
addresses and names, search cached strings, walk call graphs, and write
annotations. It communicates over stdio using JSON-RPC 2.0; logs go to
stderr.

Example usage:
  binkb mcp --fixture testdata/hello.toml

This command is typically invoked by MCP clients and not directly by
users.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	// Logs must go to stderr: stdout carries the protocol stream.
	logger := logging.NewLogger(logging.Config{
		Format: logging.JSONFormat,
		Level:  logging.InfoLevel,
		Output: os.Stderr,
	})

	logger.Info("Starting MCP server", map[string]interface{}{
		"version": version.Version,
	})

	eng, _, err := newEngine(logger)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Stop(5 * time.Second) }()

	server := mcp.NewServer(version.Version, eng, logger)
	if err := server.Start(context.Background()); err != nil {
		logger.Error("MCP server error", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	return nil
}
