package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chunkq/internal/services"
)

func echo(_ context.Context, payload []byte) ([]Output, error) {
	return []Output{{ChunkKey: string(payload), Data: payload}}, nil
}

func TestDispatchResolvesOutputs(t *testing.T) {
	pool := NewPool(2, time.Second, nil)
	f := pool.Dispatch(context.Background(), Task{ID: "t1", Payload: []byte("X"), Compile: echo})

	res, err := f.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("unexpected task error: %v", res.Err)
	}
	if res.TaskID != "t1" || len(res.Outputs) != 1 || res.Outputs[0].ChunkKey != "X" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDispatchClassifiesFailures(t *testing.T) {
	pool := NewPool(3, 50*time.Millisecond, nil)
	ctx := context.Background()

	failing := pool.Dispatch(ctx, Task{ID: "err", Compile: func(context.Context, []byte) ([]Output, error) {
		return nil, errors.New("bad payload")
	}})
	panicking := pool.Dispatch(ctx, Task{ID: "panic", Compile: func(context.Context, []byte) ([]Output, error) {
		panic("boom")
	}})
	slow := pool.Dispatch(ctx, Task{ID: "slow", Compile: func(ctx context.Context, _ []byte) ([]Output, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil, ctx.Err()
	}})

	results, err := JoinAll(ctx, []*Future{failing, panicking, slow}, time.Second)
	if err == nil {
		t.Fatal("expected join error")
	}
	if !errors.Is(results[0].Err, services.ErrWorkerError) {
		t.Fatalf("expected worker error, got %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, services.ErrWorkerError) {
		t.Fatalf("expected worker error for panic, got %v", results[1].Err)
	}
	if !errors.Is(results[2].Err, services.ErrWorkerTimeout) {
		t.Fatalf("expected worker timeout, got %v", results[2].Err)
	}
}

func TestFailureDoesNotCancelSiblings(t *testing.T) {
	pool := NewPool(2, time.Second, nil)
	ctx := context.Background()

	var completed atomic.Bool
	slowOK := pool.Dispatch(ctx, Task{ID: "ok", Payload: []byte("A"), Compile: func(ctx context.Context, p []byte) ([]Output, error) {
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		completed.Store(true)
		return echo(ctx, p)
	}})
	fastFail := pool.Dispatch(ctx, Task{ID: "fail", Compile: func(context.Context, []byte) ([]Output, error) {
		return nil, errors.New("nope")
	}})

	results, err := JoinAll(ctx, []*Future{slowOK, fastFail}, time.Second)
	if !errors.Is(err, services.ErrWorkerError) || !strings.Contains(err.Error(), "task fail") {
		t.Fatalf("expected join error naming the failed task, got %v", err)
	}
	if results[0].Err != nil || !completed.Load() {
		t.Fatalf("sibling was affected: %+v", results[0])
	}
	if results[1].Err == nil {
		t.Fatal("expected failure result")
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2, time.Second, nil)
	ctx := context.Background()

	var current, peak atomic.Int64
	compile := func(context.Context, []byte) ([]Output, error) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return nil, nil
	}

	futures := make([]*Future, 6)
	for i := range futures {
		futures[i] = pool.Dispatch(ctx, Task{ID: "t", Compile: compile})
	}
	if _, err := JoinAll(ctx, futures, 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > 2 {
		t.Fatalf("pool exceeded bound: peak=%d", peak.Load())
	}
}

func TestJoinAllDeadline(t *testing.T) {
	pool := NewPool(1, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stuck := pool.Dispatch(ctx, Task{ID: "stuck", Compile: func(ctx context.Context, _ []byte) ([]Output, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	results, err := JoinAll(context.Background(), []*Future{stuck}, 20*time.Millisecond)
	if !errors.Is(err, services.ErrWorkerTimeout) {
		t.Fatalf("expected join error to carry the timeout, got %v", err)
	}
	if !errors.Is(results[0].Err, services.ErrWorkerTimeout) {
		t.Fatalf("expected join timeout, got %v", results[0].Err)
	}
	if results[0].TaskID != "stuck" {
		t.Fatalf("expected task id on join timeout, got %q", results[0].TaskID)
	}
}

func TestMissingCompileFunc(t *testing.T) {
	pool := NewPool(1, time.Second, nil)
	res, err := pool.Dispatch(context.Background(), Task{ID: "none"}).Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !errors.Is(res.Err, services.ErrWorkerError) {
		t.Fatalf("expected worker error, got %v", res.Err)
	}
}
