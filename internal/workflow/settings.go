package workflow

import (
	"time"

	"chunkq/internal/config"
)

// Settings holds the tuning knobs of a processor.
type Settings struct {
	ItemsPerTask   int
	PollPeriod     time.Duration
	BlocksMin      int
	BlocksMax      int
	BlocksMinItems int
	WorkerTimeout  time.Duration
	Concurrency    int
}

// SettingsFromConfig converts the queue section of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		ItemsPerTask:   cfg.Queue.ItemsPerTask,
		PollPeriod:     cfg.PollPeriod(),
		BlocksMin:      cfg.Queue.BlocksMin,
		BlocksMax:      cfg.Queue.BlocksMax,
		BlocksMinItems: cfg.Queue.BlocksMinItems,
		WorkerTimeout:  cfg.WorkerTimeout(),
		Concurrency:    cfg.Worker.Concurrency,
	}
}

// FetchLimit is the size of the dedup window and the fetch of one cycle.
func (s Settings) FetchLimit() int {
	return s.ItemsPerTask * s.BlocksMax
}

func (s Settings) withDefaults() Settings {
	if s.ItemsPerTask <= 0 {
		s.ItemsPerTask = 1
	}
	if s.BlocksMax <= 0 {
		s.BlocksMax = 1
	}
	if s.BlocksMin <= 0 {
		s.BlocksMin = 1
	}
	if s.PollPeriod <= 0 {
		s.PollPeriod = time.Second
	}
	if s.Concurrency <= 0 {
		s.Concurrency = s.BlocksMax
	}
	return s
}
