// Package daemon coordinates the long-running chunkq process.
//
// It wires configuration, queue storage, the workflow manager, the client
// push hub and Prometheus metrics into a single lifecycle with flock-based
// locking so only one processor set runs against a data directory. The
// daemon also serves the HTTP API: status, queue access, compiled chunk
// reads, WebSocket push subscriptions and /metrics.
//
// Keep orchestration here: the poll loop lives in workflow and storage in
// queue; the daemon focuses on startup, shutdown and exposure.
package daemon
