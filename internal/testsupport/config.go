package testsupport

import (
	"path/filepath"
	"testing"

	"chunkq/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Queue timings are shortened so processor tests run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Queue.PollPeriodSeconds = 1
	cfg.Queue.WorkerTaskTimeout = 5
	cfg.Logging.Format = "json"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithQueue overrides the block sizing knobs.
func WithQueue(itemsPerTask, blocksMin, blocksMax, blocksMinItems int) ConfigOption {
	return func(c *config.Config) {
		c.Queue.ItemsPerTask = itemsPerTask
		c.Queue.BlocksMin = blocksMin
		c.Queue.BlocksMax = blocksMax
		c.Queue.BlocksMinItems = blocksMinItems
		c.Worker.Concurrency = blocksMax
	}
}

// WithIndexes overrides the enabled index flavors.
func WithIndexes(names ...string) ConfigOption {
	return func(c *config.Config) {
		c.Indexes.Enabled = append([]string(nil), names...)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
