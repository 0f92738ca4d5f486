// Package config loads, normalizes, and validates chunkq configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides for the
// queue tuning knobs (CHUNKQ_QUEUE_ITEMS_PER_TASK, CHUNKQ_POLL_PERIOD_SECONDS,
// CHUNKQ_QUEUE_BLOCKS_MIN, CHUNKQ_QUEUE_BLOCKS_MAX,
// CHUNKQ_QUEUE_BLOCKS_MIN_ITEMS, CHUNKQ_WORKER_TASK_TIMEOUT). The Config type
// centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
