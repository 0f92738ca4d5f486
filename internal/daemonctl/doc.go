// Package daemonctl talks to a running chunkq daemon over its HTTP API and
// assembles status snapshots for the CLI, falling back to the queue
// database when the daemon is not reachable.
package daemonctl
