package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"chunkq/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load(filepath.Join(tempHome, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "chunkq")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "chunkq.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Queue.ItemsPerTask != config.Default().Queue.ItemsPerTask {
		t.Fatalf("unexpected items per task: %d", cfg.Queue.ItemsPerTask)
	}
	if cfg.FetchLimit() != cfg.Queue.ItemsPerTask*cfg.Queue.BlocksMax {
		t.Fatalf("unexpected fetch limit: %d", cfg.FetchLimit())
	}
	if len(cfg.Indexes.Enabled) != 2 {
		t.Fatalf("expected default indexes, got %v", cfg.Indexes.Enabled)
	}
}

func TestLoadReadsTOMLAndEnvOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CHUNKQ_QUEUE_ITEMS_PER_TASK", "25")
	t.Setenv("CHUNKQ_WORKER_TASK_TIMEOUT", "7")

	values := config.Default()
	values.Paths.DataDir = filepath.Join(tempHome, "data")
	values.Queue.BlocksMax = 3
	values.Indexes.Enabled = []string{" ItemKeys ", "itemkeys"}
	values.Logging.Format = "JSON"
	data, err := toml.Marshal(values)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(tempHome, "chunkq.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Queue.ItemsPerTask != 25 {
		t.Fatalf("expected env override for items per task, got %d", cfg.Queue.ItemsPerTask)
	}
	if cfg.Queue.WorkerTaskTimeout != 7 {
		t.Fatalf("expected env override for worker timeout, got %d", cfg.Queue.WorkerTaskTimeout)
	}
	if cfg.Queue.BlocksMax != 3 {
		t.Fatalf("expected blocks max from file, got %d", cfg.Queue.BlocksMax)
	}
	if len(cfg.Indexes.Enabled) != 1 || cfg.Indexes.Enabled[0] != "itemkeys" {
		t.Fatalf("expected normalized indexes, got %v", cfg.Indexes.Enabled)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalidEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CHUNKQ_POLL_PERIOD_SECONDS", "soon")

	if _, _, _, err := config.Load(""); err == nil {
		t.Fatal("expected error for non-numeric override")
	}
}

func TestValidateQueueBounds(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"zero items", func(c *config.Config) { c.Queue.ItemsPerTask = 0 }, "queue.items_per_task"},
		{"min above max", func(c *config.Config) { c.Queue.BlocksMin = 5; c.Queue.BlocksMax = 2 }, "queue.blocks_min"},
		{"min items above block", func(c *config.Config) { c.Queue.BlocksMinItems = 500 }, "queue.blocks_min_items"},
		{"unknown index", func(c *config.Config) { c.Indexes.Enabled = []string{"branches"} }, "unknown index"},
		{"no index", func(c *config.Config) { c.Indexes.Enabled = nil }, "at least one index"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "conf", "chunkq.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Queue.BlocksMax != config.Default().Queue.BlocksMax {
		t.Fatalf("sample blocks_max drifted from defaults: %d", cfg.Queue.BlocksMax)
	}
}

func TestLoadReadsAPITokenFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CHUNKQ_API_TOKEN", "  s3cret ")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "s3cret" {
		t.Fatalf("expected trimmed token, got %q", cfg.Paths.APIToken)
	}
}
