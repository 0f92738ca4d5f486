package preflight

import (
	"context"

	"chunkq/internal/config"
	"chunkq/internal/queue"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// HealthChecker is the store surface the database check needs.
type HealthChecker interface {
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// RunAll executes every preflight check for cfg. store may be nil when the
// database has not been opened yet.
func RunAll(ctx context.Context, cfg *config.Config, store HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
	}
	if cfg.Paths.LogDir != "" && cfg.Paths.LogDir != cfg.Paths.DataDir {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	if store != nil {
		results = append(results, CheckDatabase(ctx, store))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
