// Package workflow drives the per-index queue processors.
//
// Each Processor owns one index flavor and runs a poll loop that moves through
// the states idle, polling, deduping, assembling, dispatching, publishing and
// vacuuming. A cycle collapses repeated keys inside the current id window,
// splits the survivors into bounded blocks, compiles the blocks concurrently on
// the worker pool, publishes every block that succeeded, and vacuums exactly the
// rows of those blocks. Rows of failed or timed-out blocks stay queued and the
// cursor is pinned below the first of them, so the next cycle picks them up
// again, merged with any newer notifications for the same keys.
//
// The Manager builds one Processor per enabled flavor and starts and stops them
// together. Cycles that filled at least blocks_min blocks re-poll immediately;
// otherwise a processor waits one poll period.
//
// Shutdown stops new cycles. Work already dispatched runs on a context detached
// from shutdown so its results are still published and vacuumed.
package workflow
