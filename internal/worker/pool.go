package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"chunkq/internal/logging"
	"chunkq/internal/services"
)

// Output is one compiled chunk produced by a worker.
type Output struct {
	ChunkKey string
	Data     []byte
}

// CompileFunc compiles an encoded block payload into chunk outputs.
type CompileFunc func(ctx context.Context, payload []byte) ([]Output, error)

// Task is one block handed to the pool.
type Task struct {
	ID      string
	Payload []byte
	Compile CompileFunc
}

// Result is the outcome of a task. Err is nil on success.
type Result struct {
	TaskID  string
	Outputs []Output
	Err     error
	Elapsed time.Duration
}

// Pool bounds concurrent compilations.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger
	active  atomic.Int64
}

// NewPool creates a pool running at most workers tasks at once, each limited
// to timeout.
func NewPool(workers int, timeout time.Duration, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "worker"),
	}
}

// Timeout returns the per-task deadline.
func (p *Pool) Timeout() time.Duration {
	return p.timeout
}

// Active returns the number of compilations currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Future resolves to a task's Result.
type Future struct {
	id     string
	done   chan struct{}
	result Result
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the task resolves or ctx ends.
func (f *Future) Await(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Dispatch starts task and returns its future. The task deadline starts now,
// so time spent waiting for a free slot counts against it.
func (p *Pool) Dispatch(ctx context.Context, task Task) *Future {
	f := &Future{id: task.ID, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		start := time.Now()
		f.result = p.run(ctx, task)
		f.result.TaskID = task.ID
		f.result.Elapsed = time.Since(start)
	}()
	return f
}

func (p *Pool) run(ctx context.Context, task Task) Result {
	taskCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if task.Compile == nil {
		return Result{Err: services.Wrap(services.ErrWorkerError, "worker", "compile", "no compile function", nil)}
	}
	if err := p.sem.Acquire(taskCtx, 1); err != nil {
		return Result{Err: p.contextFailure(taskCtx, "waiting for worker slot")}
	}

	resCh := make(chan Result, 1)
	go func() {
		p.active.Add(1)
		defer func() {
			p.active.Add(-1)
			p.sem.Release(1)
		}()
		defer func() {
			if r := recover(); r != nil {
				logging.WithContext(taskCtx, p.logger).Error("compile panicked",
					logging.String("panic", fmt.Sprint(r)),
					logging.String(logging.FieldEventType, "worker_panic"),
					logging.String("stack", string(debug.Stack())),
				)
				resCh <- Result{Err: services.Wrap(services.ErrWorkerError, "worker", "compile", fmt.Sprintf("panic: %v", r), nil)}
			}
		}()
		outputs, err := task.Compile(taskCtx, task.Payload)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				resCh <- Result{Err: services.Wrap(services.ErrWorkerTimeout, "worker", "compile", "", err)}
				return
			}
			resCh <- Result{Err: services.Wrap(services.ErrWorkerError, "worker", "compile", "", err)}
			return
		}
		resCh <- Result{Outputs: outputs}
	}()

	select {
	case res := <-resCh:
		return res
	case <-taskCtx.Done():
		select {
		case res := <-resCh:
			return res
		default:
		}
		return Result{Err: p.contextFailure(taskCtx, "compile")}
	}
}

func (p *Pool) contextFailure(ctx context.Context, operation string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrWorkerTimeout, "worker", operation, fmt.Sprintf("exceeded %s", p.timeout), ctx.Err())
	}
	return services.Wrap(services.ErrWorkerError, "worker", operation, "cancelled", ctx.Err())
}

// JoinAll waits for every future up to deadline and returns their results in
// order. Futures still pending at the deadline resolve as timeouts. The error
// is the first failure to resolve; it never cuts the wait short, so every
// result is populated either way.
func JoinAll(ctx context.Context, futures []*Future, deadline time.Duration) ([]Result, error) {
	results := make([]Result, len(futures))
	if len(futures) == 0 {
		return results, nil
	}
	joinCtx := ctx
	if deadline > 0 {
		var cancel context.CancelFunc
		joinCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	var g errgroup.Group
	for i, f := range futures {
		g.Go(func() error {
			res, err := f.Await(joinCtx)
			if err != nil {
				res = Result{
					TaskID: f.id,
					Err:    services.Wrap(services.ErrWorkerTimeout, "worker", "join", "result not ready", err),
				}
			}
			results[i] = res
			if res.Err != nil {
				return fmt.Errorf("task %s: %w", res.TaskID, res.Err)
			}
			return nil
		})
	}
	return results, g.Wait()
}
