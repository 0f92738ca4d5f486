package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabase verifies the queue database schema and integrity.
func CheckDatabase(ctx context.Context, store HealthChecker) Result {
	const name = "Queue database"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	health, err := store.CheckHealth(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	switch {
	case !health.DatabaseReadable:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: unreadable)", health.DBPath)}
	case len(health.MissingTables) > 0:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: missing tables %s)", health.DBPath, strings.Join(health.MissingTables, ", "))}
	case !health.IntegrityCheck:
		detail := health.Error
		if detail == "" {
			detail = "integrity check failed"
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s)", health.DBPath, detail)}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%s (schema v%d, %d queued, %d chunks)", health.DBPath, health.SchemaVersion, health.TotalRows, health.TotalChunks),
	}
}
