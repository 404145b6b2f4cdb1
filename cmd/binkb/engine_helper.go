package main

import (
	"fmt"
	"os"

	"binkb/internal/backend"
	"binkb/internal/config"
	"binkb/internal/engine"
	"binkb/internal/logging"
)

// newEngine assembles a running engine from config and the --fixture
// flags. The in-memory backend stands in for the host bridge; the host
// plugin injects its own Backend when it embeds this module.
func newEngine(logger *logging.Logger) (*engine.Engine, *config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig(cwd)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	b := backend.NewMemory()
	for _, path := range fixtureFlags {
		docID, err := b.LoadFixtureFile(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Fixture loaded", map[string]interface{}{
			"path":  path,
			"docId": docID,
		})
	}

	eng := engine.New(cfg, b, logger)
	eng.Start()
	return eng, cfg, nil
}

// newLogger builds a logger per the config's logging section, writing
// to stderr so stdout stays free for protocol and command output.
func newLogger(cfg config.LoggingConfig) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Format),
		Level:  logging.LogLevel(cfg.Level),
		Output: os.Stderr,
	})
}
