package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chunkq/internal/block"
	"chunkq/internal/dedup"
	"chunkq/internal/index"
	"chunkq/internal/logging"
	"chunkq/internal/publish"
	"chunkq/internal/queue"
	"chunkq/internal/services"
	"chunkq/internal/status"
	"chunkq/internal/worker"
)

// Store is the queue access a processor needs.
type Store interface {
	Head(ctx context.Context, index string, cursor int64) (int64, bool, error)
	FetchSince(ctx context.Context, index string, cursor int64, limit int) ([]queue.Row, error)
	DedupeWith(ctx context.Context, stmt dedup.Statement) (int64, error)
	Vacuum(ctx context.Context, index string, ids []int64) error
	Depth(ctx context.Context, index string) (int, error)
	SaveArtifact(ctx context.Context, artifact queue.BlockArtifact) error
	PutChunk(ctx context.Context, index, key string, data []byte) (queue.CompiledChunk, error)
	GetChunk(ctx context.Context, index, key string) (queue.CompiledChunk, bool, error)
}

// Processor runs the poll loop of one index.
type Processor struct {
	flavor    index.Flavor
	store     Store
	pool      *worker.Pool
	publisher *publish.Publisher
	notifier  *status.Notifier
	settings  Settings
	gate      block.Gate
	logger    *slog.Logger

	// cursor, retry and retriedAt are only touched by the goroutine running
	// cycles. retry maps row ids of failed blocks to their chunk keys.
	cursor    int64
	retry     map[int64]string
	retriedAt time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewProcessor wires a processor for flavor. sender and notifier may be nil.
func NewProcessor(flavor index.Flavor, store Store, sender publish.Sender, notifier *status.Notifier, settings Settings, logger *slog.Logger) *Processor {
	settings = settings.withDefaults()
	if notifier == nil {
		notifier = status.NewNotifier(flavor.Name(), nil)
	}
	logger = logging.NewComponentLogger(logger, "workflow").With(logging.String(logging.FieldIndex, flavor.Name()))

	publisher := publish.New(store, sender, logger)
	if merger, ok := flavor.(publish.Merger); ok {
		publisher.WithMerger(merger)
	}

	return &Processor{
		flavor:    flavor,
		store:     store,
		pool:      worker.NewPool(settings.Concurrency, settings.WorkerTimeout, logger),
		publisher: publisher,
		notifier:  notifier,
		settings:  settings,
		gate:      block.Gate{MinItems: settings.BlocksMinItems, Period: settings.PollPeriod},
		logger:    logger,
		retry:     make(map[int64]string),
	}
}

// Name returns the index the processor serves.
func (p *Processor) Name() string {
	return p.flavor.Name()
}

// Status returns the processor's current status.
func (p *Processor) Status() status.ProcessorStatus {
	return p.notifier.Snapshot()
}

// Start launches the poll loop. Status counters are reset.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("processor already running")
	}
	runCtx, cancel := context.WithCancel(services.WithIndex(ctx, p.Name()))
	p.cancel = cancel
	p.running = true
	p.done = make(chan struct{})
	p.cursor = 0
	clear(p.retry)
	p.retriedAt = time.Time{}
	p.notifier.Reset()
	p.notifier.SetRunning(true)

	go p.run(runCtx, p.done)
	return nil
}

// Stop ends the poll loop and waits for the current cycle to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *Processor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		p.notifier.SetRunning(false)
		p.notifier.SetState(status.StateStopped)
		p.logger.Info("processor stopped", logging.String(logging.FieldEventType, "processor_stopped"))
	}()

	p.logger.Info("processor started",
		logging.String(logging.FieldEventType, "processor_started"),
		logging.Int("items_per_task", p.settings.ItemsPerTask),
		logging.Int("blocks_max", p.settings.BlocksMax),
		logging.Duration("poll_period", p.settings.PollPeriod),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		report, _ := p.RunCycle(ctx)
		timer.Reset(p.nextDelay(report))
	}
}

// nextDelay re-polls immediately after a cycle that filled at least
// blocks_min blocks without failures.
func (p *Processor) nextDelay(report CycleReport) time.Duration {
	if report.Failed == 0 && report.FullBlocks >= p.settings.BlocksMin {
		return 0
	}
	return p.settings.PollPeriod
}
