package config

import (
	"errors"
	"fmt"
	"sort"
)

// KnownIndexes lists the index flavors the daemon can build.
var KnownIndexes = map[string]struct{}{
	"itemkeys": {},
	"segments": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateIndexes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.items_per_task":      c.Queue.ItemsPerTask,
		"queue.poll_period_seconds": c.Queue.PollPeriodSeconds,
		"queue.blocks_min":          c.Queue.BlocksMin,
		"queue.blocks_max":          c.Queue.BlocksMax,
		"queue.blocks_min_items":    c.Queue.BlocksMinItems,
		"queue.worker_task_timeout": c.Queue.WorkerTaskTimeout,
		"worker.concurrency":        c.Worker.Concurrency,
	}); err != nil {
		return err
	}
	if c.Queue.BlocksMin > c.Queue.BlocksMax {
		return fmt.Errorf("queue.blocks_min (%d) must not exceed queue.blocks_max (%d)", c.Queue.BlocksMin, c.Queue.BlocksMax)
	}
	if c.Queue.BlocksMinItems > c.Queue.ItemsPerTask {
		return fmt.Errorf("queue.blocks_min_items (%d) must not exceed queue.items_per_task (%d)", c.Queue.BlocksMinItems, c.Queue.ItemsPerTask)
	}
	return nil
}

func (c *Config) validateIndexes() error {
	if len(c.Indexes.Enabled) == 0 {
		return errors.New("indexes.enabled must list at least one index")
	}
	for _, name := range c.Indexes.Enabled {
		if _, ok := KnownIndexes[name]; !ok {
			known := make([]string, 0, len(KnownIndexes))
			for k := range KnownIndexes {
				known = append(known, k)
			}
			sort.Strings(known)
			return fmt.Errorf("indexes.enabled: unknown index %q (known: %v)", name, known)
		}
	}
	if c.Indexes.SegmentBuckets <= 0 {
		return errors.New("indexes.segment_buckets must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
