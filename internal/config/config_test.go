package config

import (
	"testing"
)

func TestLoadConfigReturnsDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	def := DefaultConfig()
	if cfg.Limits != def.Limits {
		t.Errorf("limits = %+v, want defaults %+v", cfg.Limits, def.Limits)
	}
	if cfg.Logging != def.Logging {
		t.Errorf("logging = %+v, want defaults %+v", cfg.Logging, def.Logging)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Limits.DefaultMaxResults = 7
	cfg.Cache.Dir = "/tmp/binkb-cache"
	cfg.Logging.Format = "json"
	if err := cfg.Save(root); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Limits.DefaultMaxResults != 7 {
		t.Errorf("defaultMaxResults = %d, want 7", loaded.Limits.DefaultMaxResults)
	}
	if loaded.Cache.Dir != "/tmp/binkb-cache" {
		t.Errorf("cache.dir = %q", loaded.Cache.Dir)
	}
	if loaded.Logging.Format != "json" {
		t.Errorf("logging.format = %q", loaded.Logging.Format)
	}
	// Untouched fields keep their defaults.
	if loaded.Limits.MaxBatchResolve != DefaultConfig().Limits.MaxBatchResolve {
		t.Errorf("maxBatchResolve = %d", loaded.Limits.MaxBatchResolve)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.Limits.MaxBatchResolve = 0
	if err := cfg.Validate(); err == nil {
		t.Error("maxBatchResolve=0 accepted")
	}

	cfg = DefaultConfig()
	cfg.Limits.DefaultMaxResults = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative defaultMaxResults accepted")
	}

	cfg = DefaultConfig()
	cfg.Version = 99
	if err := cfg.Validate(); err == nil {
		t.Error("unknown config version accepted")
	}
}
