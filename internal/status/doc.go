// Package status tracks the live state of each queue processor.
//
// A Notifier has a single writer, its processor, and any number of readers
// calling Snapshot. Fields are stored atomically so readers never block the
// processor. Every update is mirrored into Prometheus collectors labelled by
// index so the daemon can expose them on /metrics.
package status
