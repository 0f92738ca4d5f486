package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"chunkq/internal/config"
	"chunkq/internal/daemon"
	"chunkq/internal/logging"
	"chunkq/internal/testsupport"
)

// offlineAPI is an address nothing listens on, so daemon calls fail fast.
const offlineAPI = "127.0.0.1:1"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := testsupport.NewConfig(t, testsupport.WithQueue(10, 1, 2, 1))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "chunkq.toml")

	fileCfg := *cfg
	fileCfg.Paths.APIBind = offlineAPI
	writeTestConfig(t, configPath, &fileCfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

// startDaemon runs a daemon against the environment's database and returns
// its API address.
func (e *cliTestEnv) startDaemon(t *testing.T) string {
	t.Helper()
	store := testsupport.MustOpenStore(t, e.cfg)
	d, err := daemon.New(e.cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d.Addr()
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, api, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if api != "" {
		flags = append(flags, "--api", api)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}
