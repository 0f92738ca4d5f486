package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chunkq/internal/api"
	"chunkq/internal/daemonctl"
)

func TestCLIEnqueueDirectThenQueueList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"enqueue", "itemkeys", "alpha", "beta", "--direct"}, "", env.configPath)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(out, "Enqueued 2 row(s) for itemkeys via database") {
		t.Fatalf("unexpected enqueue output: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "list", "--json"}, "", env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	var resp api.QueueListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode queue list: %v\n%s", err, out)
	}
	if len(resp.Rows) != 2 || resp.Rows[0].ChunkKey != "alpha" || resp.Rows[1].ChunkKey != "beta" {
		t.Fatalf("unexpected rows %+v", resp.Rows)
	}
	if resp.Rows[0].ID >= resp.Rows[1].ID {
		t.Fatalf("expected ascending ids, got %d then %d", resp.Rows[0].ID, resp.Rows[1].ID)
	}

	out, _, err = runCLI(t, []string{"queue", "stats"}, "", env.configPath)
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	if !strings.Contains(out, "itemkeys") {
		t.Fatalf("expected itemkeys row in stats:\n%s", out)
	}
}

func TestCLIEnqueueFallsBackToDatabaseWhenDaemonDown(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"enqueue", "itemkeys", "gamma"}, "", env.configPath)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(out, "via database") {
		t.Fatalf("expected database fallback, got %q", out)
	}
}

func TestCLIEnqueueReadsStdin(t *testing.T) {
	env := setupCLITestEnv(t)

	cmd := newRootCommand()
	var stdout strings.Builder
	cmd.SetOut(&stdout)
	cmd.SetIn(strings.NewReader("one\n\n# comment\ntwo\n"))
	cmd.SetArgs([]string{"--config", env.configPath, "enqueue", "itemkeys", "--stdin", "--direct", "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("enqueue --stdin: %v", err)
	}
	var resp api.EnqueueResponse
	if err := json.Unmarshal([]byte(stdout.String()), &resp); err != nil {
		t.Fatalf("decode enqueue: %v", err)
	}
	if len(resp.Rows) != 2 || resp.Rows[0].ChunkKey != "one" || resp.Rows[1].ChunkKey != "two" {
		t.Fatalf("unexpected rows %+v", resp.Rows)
	}
}

func TestCLIRejectsUnknownIndexAndMissingKeys(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"enqueue", "branches", "x", "--direct"}, "", env.configPath); err == nil || !strings.Contains(err.Error(), "unknown index") {
		t.Fatalf("expected unknown index error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"enqueue", "itemkeys", "--direct"}, "", env.configPath); err == nil || !strings.Contains(err.Error(), "no keys") {
		t.Fatalf("expected missing keys error, got %v", err)
	}
}

func TestCLIChunksShowMissing(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"chunks", "show", "itemkeys", "nope"}, "", env.configPath)
	if err == nil || !strings.Contains(err.Error(), "has not been compiled") {
		t.Fatalf("expected missing chunk error, got %v", err)
	}

	out, _, err := runCLI(t, []string{"chunks", "list", "itemkeys"}, "", env.configPath)
	if err != nil {
		t.Fatalf("chunks list: %v", err)
	}
	if !strings.Contains(out, "No compiled chunks") {
		t.Fatalf("unexpected chunks list output: %q", out)
	}
}

func TestCLIStatusOffline(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"enqueue", "itemkeys", "k", "--direct"}, "", env.configPath); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, "", env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Daemon:   not running") {
		t.Fatalf("expected offline daemon, got:\n%s", out)
	}
	if !strings.Contains(out, env.cfg.DatabasePath()) {
		t.Fatalf("expected database path in status:\n%s", out)
	}
	if !strings.Contains(out, "[ok] Queue database") {
		t.Fatalf("expected local database check:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"status", "--json"}, "", env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var snap daemonctl.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snap.Reachable || len(snap.Queue) != 1 || snap.Queue[0].PendingRows != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestCLIEnqueueThroughDaemonCompilesChunk(t *testing.T) {
	env := setupCLITestEnv(t)
	addr := env.startDaemon(t)

	out, _, err := runCLI(t, []string{"enqueue", "itemkeys", "delta", "delta"}, addr, env.configPath)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(out, "via daemon") {
		t.Fatalf("expected daemon enqueue, got %q", out)
	}

	var shown string
	waitFor(t, 5*time.Second, func() bool {
		out, _, err := runCLI(t, []string{"chunks", "show", "itemkeys", "delta"}, addr, env.configPath)
		shown = out
		return err == nil
	})
	if !strings.Contains(shown, "Version: 1") || !strings.Contains(shown, "delta") {
		t.Fatalf("unexpected chunk output:\n%s", shown)
	}

	waitFor(t, 5*time.Second, func() bool {
		out, _, err := runCLI(t, []string{"queue", "list"}, addr, env.configPath)
		return err == nil && strings.Contains(out, "Queue is empty")
	})

	out, _, err = runCLI(t, []string{"status"}, addr, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Daemon:   running") || !strings.Contains(out, "itemkeys") {
		t.Fatalf("unexpected status output:\n%s", out)
	}
}

func TestCLIConfigInitAndValidate(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", base)
	target := filepath.Join(base, "conf", "chunkq.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected target path in output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected existing file error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, "", target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, "itemkeys") {
		t.Fatalf("unexpected validate output:\n%s", out)
	}
}

func TestCLIConfigValidateReportsErrors(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", base)
	path := filepath.Join(base, "bad.toml")
	if err := os.WriteFile(path, []byte("[queue]\nitems_per_task = 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "validate"}, "", path); err == nil || !strings.Contains(err.Error(), "items_per_task") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCLILogsShowsTail(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	if err := os.WriteFile(env.cfg.LogFilePath(), []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, "", env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "b\nc\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}
