// Package publish stores compiled chunks and forwards them to live clients.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chunkq/internal/logging"
	"chunkq/internal/queue"
	"chunkq/internal/services"
	"chunkq/internal/worker"
)

// ChunkWriter persists a new chunk version.
type ChunkWriter interface {
	PutChunk(ctx context.Context, index, key string, data []byte) (queue.CompiledChunk, error)
}

// ChunkReader reads the currently stored chunk.
type ChunkReader interface {
	GetChunk(ctx context.Context, index, key string) (queue.CompiledChunk, bool, error)
}

// Merger folds a compiled payload into the stored one. Flavors whose chunks
// accumulate across blocks implement it.
type Merger interface {
	Merge(key string, previous, next []byte) ([]byte, error)
}

// Sender forwards stored chunks to subscribed clients.
type Sender interface {
	SendChunks(ctx context.Context, chunks []queue.CompiledChunk) error
}

// Publisher writes worker outputs to the store and notifies clients.
type Publisher struct {
	store  ChunkWriter
	sender Sender
	merger Merger
	logger *slog.Logger
}

// New creates a publisher. sender may be nil when client push is disabled.
func New(store ChunkWriter, sender Sender, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, sender: sender, logger: logging.NewComponentLogger(logger, "publish")}
}

// WithMerger makes the publisher merge each output into the stored chunk
// before writing. The store must also implement ChunkReader.
func (p *Publisher) WithMerger(m Merger) *Publisher {
	p.merger = m
	return p
}

// Publish stores every output as the next version of its chunk, then sends
// the stored chunks to clients.
//
// A store failure stops the remaining writes and is returned so the caller
// keeps the block's rows for retry; chunks already stored are still sent. A
// push failure alone returns the stored chunks with an error wrapping
// services.ErrPublishFailure, and the block counts as published.
func (p *Publisher) Publish(ctx context.Context, index string, outputs []worker.Output) ([]queue.CompiledChunk, error) {
	logger := logging.WithContext(ctx, p.logger)
	chunks := make([]queue.CompiledChunk, 0, len(outputs))
	var storeErr error
	for _, out := range outputs {
		if out.ChunkKey == "" {
			storeErr = services.Wrap(services.ErrWorkerError, "publish", "store chunk", "worker returned an output without chunk key", nil)
			break
		}
		data, err := p.merge(ctx, index, out)
		if err != nil {
			storeErr = err
			break
		}
		chunk, err := p.store.PutChunk(ctx, index, out.ChunkKey, data)
		if err != nil {
			storeErr = fmt.Errorf("store chunk %q: %w", out.ChunkKey, err)
			break
		}
		chunks = append(chunks, chunk)
	}

	pushErr := p.send(ctx, chunks)
	if pushErr != nil {
		logging.WarnWithContext(logger, "client push incomplete", "push_failed",
			logging.Error(pushErr),
			logging.Int("chunks", len(chunks)),
			logging.String(logging.FieldErrorHint, "slow or disconnected clients can re-read chunks over the API"),
			logging.String(logging.FieldImpact, "some clients missed a chunk update"),
		)
	}
	if storeErr != nil {
		return chunks, errors.Join(storeErr, pushErr)
	}
	logger.Debug("chunks published", logging.Int("chunks", len(chunks)))
	return chunks, pushErr
}

func (p *Publisher) merge(ctx context.Context, index string, out worker.Output) ([]byte, error) {
	if p.merger == nil {
		return out.Data, nil
	}
	reader, ok := p.store.(ChunkReader)
	if !ok {
		return out.Data, nil
	}
	previous, found, err := reader.GetChunk(ctx, index, out.ChunkKey)
	if err != nil {
		return nil, fmt.Errorf("read chunk %q: %w", out.ChunkKey, err)
	}
	if !found {
		return out.Data, nil
	}
	return p.merger.Merge(out.ChunkKey, previous.Data, out.Data)
}

func (p *Publisher) send(ctx context.Context, chunks []queue.CompiledChunk) (err error) {
	if p.sender == nil || len(chunks) == 0 {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrPublishFailure, "publish", "send chunks", fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	if err := p.sender.SendChunks(ctx, chunks); err != nil {
		if errors.Is(err, services.ErrPublishFailure) {
			return err
		}
		return services.Wrap(services.ErrPublishFailure, "publish", "send chunks", "", err)
	}
	return nil
}
