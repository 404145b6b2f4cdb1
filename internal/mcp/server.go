// Package mcp speaks the Model Context Protocol over line-delimited
// JSON-RPC on stdio. One request is handled at a time; the engine
// serializes backend access anyway, so there is nothing to gain from
// concurrent dispatch.
package mcp

import (
	"bufio"
	"context"
	"io"
	"os"

	"binkb/internal/engine"
	"binkb/internal/logging"
)

// Server represents the MCP server
type Server struct {
	stdin   io.Reader
	stdout  io.Writer
	scanner *bufio.Scanner
	logger  *logging.Logger
	version string
	engine  *engine.Engine
	tools   map[string]ToolHandler
}

// NewServer creates a new MCP server over the given engine.
func NewServer(version string, eng *engine.Engine, logger *logging.Logger) *Server {
	s := &Server{
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		logger:  logger,
		version: version,
		engine:  eng,
		tools:   make(map[string]ToolHandler),
	}
	s.RegisterTools()
	return s
}

// SetStdin sets the input stream (for testing)
func (s *Server) SetStdin(r io.Reader) {
	s.stdin = r
	s.scanner = nil // Reset scanner so it will be recreated with new reader
}

// SetStdout sets the output stream (for testing)
func (s *Server) SetStdout(w io.Writer) {
	s.stdout = w
}

// Start runs the message loop until stdin closes.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("MCP server starting", map[string]interface{}{
		"version": s.version,
	})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.logger.Info("MCP server shutting down (EOF)", nil)
				return nil
			}
			// Scanner-level failures (oversized line, broken pipe) never
			// clear: Scan keeps failing with the same error, so looping on
			// it would spin forever. Malformed JSON on an otherwise healthy
			// stream is recoverable per line.
			if s.scanner != nil && s.scanner.Err() != nil {
				s.logger.Error("Unrecoverable transport error", map[string]interface{}{
					"error": err.Error(),
				})
				return err
			}
			s.logger.Error("Error reading message", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		response := s.handleMessage(ctx, msg)

		// Notifications don't generate responses.
		if response != nil {
			if err := s.writeMessage(response); err != nil {
				s.logger.Error("Error writing response", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}
