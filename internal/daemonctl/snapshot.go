package daemonctl

import (
	"context"
	"errors"
	"time"

	"chunkq/internal/api"
	"chunkq/internal/config"
	"chunkq/internal/preflight"
	"chunkq/internal/queue"
)

// Snapshot is the CLI view of the daemon and its queue database.
type Snapshot struct {
	Reachable bool               `json:"reachable"`
	Daemon    api.DaemonStatus   `json:"daemon"`
	Queue     []queue.IndexStats `json:"queue"`
	Checks    []api.CheckResult  `json:"checks,omitempty"`
}

// BuildStatusSnapshot asks the daemon for its status and reads per-index
// queue statistics from the database. When the daemon is unreachable the
// preflight checks run locally instead.
func BuildStatusSnapshot(ctx context.Context, client *Client, cfg *config.Config) (Snapshot, error) {
	if cfg == nil {
		return Snapshot{}, errors.New("configuration not available")
	}
	var snap Snapshot

	if client != nil {
		st, err := client.Status(ctx)
		switch {
		case err == nil:
			snap.Reachable = true
			snap.Daemon = st
			snap.Checks = st.Checks
		case !errors.Is(err, ErrUnavailable):
			return snap, err
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := queue.Open(cfg)
	if err != nil {
		return snap, err
	}
	defer store.Close()

	if snap.Queue, err = store.Stats(queryCtx); err != nil {
		return snap, err
	}
	if !snap.Reachable {
		snap.Daemon.DatabasePath = store.Path()
		snap.Daemon.LockFilePath = cfg.LockPath()
		snap.Checks = api.FromCheckResults(preflight.RunAll(queryCtx, cfg, store))
	}
	return snap, nil
}
