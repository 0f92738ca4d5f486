package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"chunkq/internal/config"
	"chunkq/internal/logging"
	"chunkq/internal/preflight"
	"chunkq/internal/publish"
	"chunkq/internal/push"
	"chunkq/internal/queue"
	"chunkq/internal/services"
	"chunkq/internal/status"
	"chunkq/internal/workflow"
)

// Daemon owns the processors of every enabled index and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	hub      *push.Hub
	registry *prometheus.Registry
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Processors   []status.ProcessorStatus
	PushEnabled  bool
	Subscribers  int
	Delivered    int64
	Dropped      int64
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	registry := prometheus.NewRegistry()
	metrics := status.NewMetrics(registry)

	var (
		hub    *push.Hub
		sender publish.Sender
	)
	if cfg.Push.Enabled {
		hub = push.NewHub(cfg.Push.BufferSize, logger)
		sender = hub
	}

	mgr, err := workflow.NewManager(cfg, store, sender, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: mgr,
		hub:      hub,
		registry: registry,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start runs preflight checks, acquires the daemon lock, launches the
// processors and starts the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if failed := preflight.Failed(preflight.RunAll(ctx, d.cfg, d.store)); len(failed) > 0 {
		details := make([]string, len(failed))
		for i, r := range failed {
			details[i] = r.Name + ": " + r.Detail
		}
		return services.Wrap(services.ErrConfiguration, "daemon", "preflight", strings.Join(details, "; "), nil)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another chunkq daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("chunkq daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("indexes", strings.Join(d.workflow.Indexes(), ",")),
	)
	return nil
}

// Stop stops the API server and processors and releases the daemon lock.
// In-flight cycles finish publishing before Stop returns.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("chunkq daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Handler returns the API handler. It is usable without Start, which tests
// and embedding servers rely on.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Addr returns the address the API server listens on, or "" when it is not
// serving.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Registry exposes the Prometheus registry backing /metrics.
func (d *Daemon) Registry() *prometheus.Registry {
	return d.registry
}

// Hub returns the push hub, or nil when push is disabled.
func (d *Daemon) Hub() *push.Hub {
	return d.hub
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Processors:   d.workflow.Status(),
		PushEnabled:  d.hub != nil,
		Checks:       preflight.RunAll(ctx, d.cfg, nil),
	}
	if d.hub != nil {
		st.Subscribers = d.hub.Subscribers()
		st.Delivered = d.hub.Delivered()
		st.Dropped = d.hub.Dropped()
	}
	return st
}

// Enqueue appends change notifications for one of the managed indexes.
func (d *Daemon) Enqueue(ctx context.Context, index string, keys []string) ([]queue.Row, error) {
	index = strings.ToLower(strings.TrimSpace(index))
	if !slices.Contains(d.workflow.Indexes(), index) {
		return nil, services.Wrap(services.ErrValidation, "daemon", "enqueue", fmt.Sprintf("unknown index %q", index), nil)
	}
	if len(keys) == 0 {
		return nil, services.Wrap(services.ErrValidation, "daemon", "enqueue", "no keys", nil)
	}
	rows, err := d.store.Enqueue(ctx, index, keys...)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("rows enqueued",
		logging.String(logging.FieldIndex, index),
		logging.Int("rows", len(rows)),
	)
	return rows, nil
}

// QueueRows lists pending rows of index, or of every index when index is empty.
func (d *Daemon) QueueRows(ctx context.Context, index string, limit int) ([]queue.Row, error) {
	return d.store.List(ctx, strings.ToLower(strings.TrimSpace(index)), limit)
}

// Chunk returns the latest compiled version of a chunk.
func (d *Daemon) Chunk(ctx context.Context, index, key string) (queue.CompiledChunk, bool, error) {
	return d.store.GetChunk(ctx, index, key)
}
