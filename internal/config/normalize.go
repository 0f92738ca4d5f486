package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// envOverrides maps queue environment variables onto their config fields.
var envOverrides = []struct {
	name  string
	field func(*Config) *int
}{
	{"CHUNKQ_QUEUE_ITEMS_PER_TASK", func(c *Config) *int { return &c.Queue.ItemsPerTask }},
	{"CHUNKQ_POLL_PERIOD_SECONDS", func(c *Config) *int { return &c.Queue.PollPeriodSeconds }},
	{"CHUNKQ_QUEUE_BLOCKS_MIN", func(c *Config) *int { return &c.Queue.BlocksMin }},
	{"CHUNKQ_QUEUE_BLOCKS_MAX", func(c *Config) *int { return &c.Queue.BlocksMax }},
	{"CHUNKQ_QUEUE_BLOCKS_MIN_ITEMS", func(c *Config) *int { return &c.Queue.BlocksMinItems }},
	{"CHUNKQ_WORKER_TASK_TIMEOUT", func(c *Config) *int { return &c.Queue.WorkerTaskTimeout }},
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.applyEnvOverrides(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeIndexes()
	c.normalizePush()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if token, ok := os.LookupEnv("CHUNKQ_API_TOKEN"); ok {
		c.Paths.APIToken = token
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) applyEnvOverrides() error {
	for _, override := range envOverrides {
		value, ok := os.LookupEnv(override.name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", override.name, value)
		}
		*override.field(c) = parsed
	}
	return nil
}

func (c *Config) normalizeQueue() {
	if c.Queue.VacuumBatchSize <= 0 {
		c.Queue.VacuumBatchSize = defaultVacuumBatchSize
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = c.Queue.BlocksMax
	}
	if c.Storage.ChunkCacheSize < 0 {
		c.Storage.ChunkCacheSize = 0
	}
}

func (c *Config) normalizeIndexes() {
	seen := make(map[string]struct{}, len(c.Indexes.Enabled))
	names := make([]string, 0, len(c.Indexes.Enabled))
	for _, name := range c.Indexes.Enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	c.Indexes.Enabled = names
}

func (c *Config) normalizePush() {
	if c.Push.BufferSize <= 0 {
		c.Push.BufferSize = defaultPushBufferSize
	}
	if c.Push.WriteTimeoutSeconds <= 0 {
		c.Push.WriteTimeoutSeconds = 10
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json", "auto":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
