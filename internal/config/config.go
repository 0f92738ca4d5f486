package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on every API request.
	APIToken string `toml:"api_token"`
}

// Queue contains the tuning knobs of the compiler queue processors.
type Queue struct {
	// ItemsPerTask caps the number of queue rows in one dispatched block.
	ItemsPerTask int `toml:"items_per_task"`
	// PollPeriodSeconds is the idle interval between poll cycles.
	PollPeriodSeconds int `toml:"poll_period_seconds"`
	// BlocksMin is the number of full-size blocks a cycle must produce for the
	// next cycle to start immediately instead of waiting for the poll tick.
	BlocksMin int `toml:"blocks_min"`
	// BlocksMax bounds the number of blocks in flight per cycle.
	BlocksMax int `toml:"blocks_max"`
	// BlocksMinItems holds back dispatch until this many rows are pending,
	// unless they have waited longer than one poll period.
	BlocksMinItems int `toml:"blocks_min_items"`
	// WorkerTaskTimeout is the per-block worker deadline in seconds.
	WorkerTaskTimeout int `toml:"worker_task_timeout"`
	VacuumBatchSize   int `toml:"vacuum_batch_size"`
}

// Worker contains configuration for the in-process compile pool.
type Worker struct {
	Concurrency int `toml:"concurrency"`
}

// Indexes selects which index flavors the daemon processes.
type Indexes struct {
	Enabled        []string `toml:"enabled"`
	SegmentBuckets int      `toml:"segment_buckets"`
}

// Storage contains configuration for compiled chunk reads.
type Storage struct {
	ChunkCacheSize int `toml:"chunk_cache_size"`
}

// Push contains configuration for live client chunk notifications.
type Push struct {
	Enabled             bool `toml:"enabled"`
	BufferSize          int  `toml:"buffer_size"`
	WriteTimeoutSeconds int  `toml:"write_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for chunkq.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Queue: poll period, block sizing and worker timeout
//   - Worker: compile pool concurrency
//   - Indexes: enabled index flavors
//   - Storage: compiled chunk read cache
//   - Push: WebSocket client notifications
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Queue   Queue   `toml:"queue"`
	Worker  Worker  `toml:"worker"`
	Indexes Indexes `toml:"indexes"`
	Storage Storage `toml:"storage"`
	Push    Push    `toml:"push"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/chunkq/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("chunkq.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the queue database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "chunkq.db")
}

// LogFilePath returns the daemon's log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "chunkq.log")
}

// LockPath returns the location of the single-instance daemon lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "chunkqd.lock")
}

// PollPeriod returns the queue poll period as a duration.
func (c *Config) PollPeriod() time.Duration {
	return time.Duration(c.Queue.PollPeriodSeconds) * time.Second
}

// WorkerTimeout returns the per-block worker deadline as a duration.
func (c *Config) WorkerTimeout() time.Duration {
	return time.Duration(c.Queue.WorkerTaskTimeout) * time.Second
}

// FetchLimit is the dedup window and fetch size of one poll cycle.
func (c *Config) FetchLimit() int {
	return c.Queue.ItemsPerTask * c.Queue.BlocksMax
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
