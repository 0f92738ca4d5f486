package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"chunkq/internal/dedup"
	"chunkq/internal/queue"
	"chunkq/internal/services"
	"chunkq/internal/worker"
)

// ItemKeysName is the index name of the item key flavor.
const ItemKeysName = "itemkeys"

// ItemChunk is the compiled payload of one item key.
type ItemChunk struct {
	Key      string  `json:"key"`
	Events   []int64 `json:"events"`
	LatestMS int64   `json:"latest_ms"`
}

// ItemKeys compiles one chunk per distinct key.
type ItemKeys struct{}

// NewItemKeys returns the item key flavor.
func NewItemKeys() *ItemKeys { return &ItemKeys{} }

// Name returns ItemKeysName.
func (*ItemKeys) Name() string { return ItemKeysName }

// EncodeBlock serializes rows as a JSON block payload.
func (f *ItemKeys) EncodeBlock(rows []queue.Row) ([]byte, error) {
	return json.Marshal(blockPayload{Index: f.Name(), Rows: toEntries(rows)})
}

// Compile groups the payload's rows by key and emits one ItemChunk per key
// with its event ids in ascending order.
func (f *ItemKeys) Compile(ctx context.Context, payload []byte) ([]worker.Output, error) {
	var block blockPayload
	if err := json.Unmarshal(payload, &block); err != nil {
		return nil, services.Wrap(services.ErrWorkerError, f.Name(), "decode payload", "", err)
	}
	chunks := make(map[string]*ItemChunk)
	for _, entry := range block.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, ok := chunks[entry.Key]
		if !ok {
			chunk = &ItemChunk{Key: entry.Key}
			chunks[entry.Key] = chunk
		}
		chunk.Events = append(chunk.Events, entry.ID)
		chunk.LatestMS = max(chunk.LatestMS, entry.EnqueuedAt)
	}

	outputs := make([]worker.Output, 0, len(chunks))
	for key, chunk := range chunks {
		sort.Slice(chunk.Events, func(i, j int) bool { return chunk.Events[i] < chunk.Events[j] })
		data, err := json.Marshal(chunk)
		if err != nil {
			return nil, fmt.Errorf("encode chunk %q: %w", key, err)
		}
		outputs = append(outputs, worker.Output{ChunkKey: key, Data: data})
	}
	return outputs, nil
}

// ProcessResults sorts outputs by key, keeping the last output per key.
func (f *ItemKeys) ProcessResults(outputs []worker.Output) ([]worker.Output, error) {
	return sortOutputs(f.Name(), outputs)
}

// DedupeQuery returns the default dedup statement for the index table.
func (f *ItemKeys) DedupeQuery(w dedup.Window) dedup.Statement {
	return dedup.Query(f.Name(), w)
}
