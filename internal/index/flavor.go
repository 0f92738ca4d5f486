package index

import (
	"context"
	"fmt"
	"sort"

	"chunkq/internal/config"
	"chunkq/internal/dedup"
	"chunkq/internal/queue"
	"chunkq/internal/services"
	"chunkq/internal/worker"
)

// Flavor is the strategy behind one index's queue processor.
type Flavor interface {
	Name() string
	EncodeBlock(rows []queue.Row) ([]byte, error)
	Compile(ctx context.Context, payload []byte) ([]worker.Output, error)
	ProcessResults(outputs []worker.Output) ([]worker.Output, error)
	DedupeQuery(w dedup.Window) dedup.Statement
}

// Build returns the flavors enabled in cfg, in configuration order.
func Build(cfg *config.Config) ([]Flavor, error) {
	flavors := make([]Flavor, 0, len(cfg.Indexes.Enabled))
	for _, name := range cfg.Indexes.Enabled {
		switch name {
		case ItemKeysName:
			flavors = append(flavors, NewItemKeys())
		case SegmentsName:
			flavors = append(flavors, NewSegments(cfg.Indexes.SegmentBuckets))
		default:
			return nil, services.Wrap(services.ErrConfiguration, "index", "build", fmt.Sprintf("unknown index %q", name), nil)
		}
	}
	return flavors, nil
}

// blockPayload is the worker payload shared by the shipped flavors.
type blockPayload struct {
	Index string         `json:"index"`
	Rows  []payloadEntry `json:"rows"`
}

type payloadEntry struct {
	ID         int64  `json:"id"`
	Key        string `json:"key"`
	EnqueuedAt int64  `json:"enqueued_at"`
}

func toEntries(rows []queue.Row) []payloadEntry {
	entries := make([]payloadEntry, len(rows))
	for i, row := range rows {
		entries[i] = payloadEntry{ID: row.ID, Key: row.ChunkKey, EnqueuedAt: row.EnqueuedAt.UnixMilli()}
	}
	return entries
}

// sortOutputs orders outputs by key and keeps the last output per key.
func sortOutputs(index string, outputs []worker.Output) ([]worker.Output, error) {
	byKey := make(map[string]worker.Output, len(outputs))
	for _, out := range outputs {
		if out.ChunkKey == "" {
			return nil, services.Wrap(services.ErrWorkerError, index, "process results", "output without chunk key", nil)
		}
		byKey[out.ChunkKey] = out
	}
	result := make([]worker.Output, 0, len(byKey))
	for _, out := range byKey {
		result = append(result, out)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ChunkKey < result[j].ChunkKey })
	return result, nil
}
