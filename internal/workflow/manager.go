package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"chunkq/internal/config"
	"chunkq/internal/index"
	"chunkq/internal/logging"
	"chunkq/internal/publish"
	"chunkq/internal/status"
)

// Manager runs one processor per enabled index flavor.
type Manager struct {
	processors []*Processor
	byName     map[string]*Processor
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewManager builds processors for the flavors enabled in cfg. sender and
// metrics may be nil.
func NewManager(cfg *config.Config, store Store, sender publish.Sender, metrics *status.Metrics, logger *slog.Logger) (*Manager, error) {
	flavors, err := index.Build(cfg)
	if err != nil {
		return nil, err
	}
	return NewManagerWithFlavors(flavors, store, sender, metrics, SettingsFromConfig(cfg), logger), nil
}

// NewManagerWithFlavors builds processors for explicit flavors.
func NewManagerWithFlavors(flavors []index.Flavor, store Store, sender publish.Sender, metrics *status.Metrics, settings Settings, logger *slog.Logger) *Manager {
	m := &Manager{
		byName: make(map[string]*Processor, len(flavors)),
		logger: logging.NewComponentLogger(logger, "workflow"),
	}
	for _, flavor := range flavors {
		notifier := status.NewNotifier(flavor.Name(), metrics)
		proc := NewProcessor(flavor, store, sender, notifier, settings, logger)
		m.processors = append(m.processors, proc)
		m.byName[flavor.Name()] = proc
	}
	return m
}

// Start launches every processor.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.processors) == 0 {
		return errors.New("no index processors configured")
	}
	for i, proc := range m.processors {
		if err := proc.Start(ctx); err != nil {
			for _, started := range m.processors[:i] {
				started.Stop()
			}
			return err
		}
	}
	m.running = true
	m.logger.Info("workflow started", logging.Int("processors", len(m.processors)))
	return nil
}

// Stop halts every processor and waits for in-flight cycles.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, proc := range m.processors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proc.Stop()
		}()
	}
	wg.Wait()
	m.logger.Info("workflow stopped")
}

// Running reports whether the processors were started.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status returns one snapshot per processor in configuration order.
func (m *Manager) Status() []status.ProcessorStatus {
	out := make([]status.ProcessorStatus, 0, len(m.processors))
	for _, proc := range m.processors {
		out = append(out, proc.Status())
	}
	return out
}

// Processor returns the processor serving name.
func (m *Manager) Processor(name string) (*Processor, bool) {
	proc, ok := m.byName[name]
	return proc, ok
}

// Indexes returns the names of the managed indexes.
func (m *Manager) Indexes() []string {
	names := make([]string, len(m.processors))
	for i, proc := range m.processors {
		names[i] = proc.Name()
	}
	return names
}
