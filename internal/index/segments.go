package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"chunkq/internal/dedup"
	"chunkq/internal/queue"
	"chunkq/internal/services"
	"chunkq/internal/worker"
)

// SegmentsName is the index name of the segment flavor.
const SegmentsName = "segments"

const segmentPrefix = "segment/"

// SegmentChunk is the compiled payload of one segment.
type SegmentChunk struct {
	Segment  int      `json:"segment"`
	Members  []string `json:"members"`
	LatestMS int64    `json:"latest_ms"`
}

// Segments buckets keys by hash and compiles one chunk per touched bucket.
type Segments struct {
	buckets int
}

// NewSegments returns a segment flavor with the given bucket count. A
// non-positive count means a single bucket.
func NewSegments(buckets int) *Segments {
	if buckets <= 0 {
		buckets = 1
	}
	return &Segments{buckets: buckets}
}

// Buckets returns the number of segments.
func (f *Segments) Buckets() int {
	return f.buckets
}

// Name returns SegmentsName.
func (*Segments) Name() string { return SegmentsName }

// Bucket returns the segment a key belongs to.
func (f *Segments) Bucket(key string) int {
	return int(xxhash.Sum64String(key) % uint64(f.buckets))
}

// SegmentKey returns the chunk key of segment n.
func SegmentKey(n int) string {
	return segmentPrefix + strconv.Itoa(n)
}

// ParseSegmentKey extracts the segment number from a chunk key.
func ParseSegmentKey(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, segmentPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// EncodeBlock serializes rows as a JSON block payload.
func (f *Segments) EncodeBlock(rows []queue.Row) ([]byte, error) {
	return json.Marshal(blockPayload{Index: f.Name(), Rows: toEntries(rows)})
}

// Compile groups the payload's keys by bucket and emits one SegmentChunk per
// touched segment.
func (f *Segments) Compile(ctx context.Context, payload []byte) ([]worker.Output, error) {
	var block blockPayload
	if err := json.Unmarshal(payload, &block); err != nil {
		return nil, services.Wrap(services.ErrWorkerError, f.Name(), "decode payload", "", err)
	}

	touched := make(map[int]*SegmentChunk)
	for _, entry := range block.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := f.Bucket(entry.Key)
		chunk, ok := touched[n]
		if !ok {
			chunk = &SegmentChunk{Segment: n}
			touched[n] = chunk
		}
		chunk.Members = append(chunk.Members, entry.Key)
		chunk.LatestMS = max(chunk.LatestMS, entry.EnqueuedAt)
	}

	outputs := make([]worker.Output, 0, len(touched))
	for n, chunk := range touched {
		chunk.Members = uniqueSorted(chunk.Members)
		data, err := json.Marshal(chunk)
		if err != nil {
			return nil, fmt.Errorf("encode segment %d: %w", n, err)
		}
		outputs = append(outputs, worker.Output{ChunkKey: SegmentKey(n), Data: data})
	}
	return outputs, nil
}

// Merge folds a freshly compiled segment into the previously stored one so
// members accumulate across blocks.
func (f *Segments) Merge(key string, previous, next []byte) ([]byte, error) {
	var prev, cur SegmentChunk
	if err := json.Unmarshal(previous, &prev); err != nil {
		return nil, services.Wrap(services.ErrWorkerError, f.Name(), "merge", "decode stored "+key, err)
	}
	if err := json.Unmarshal(next, &cur); err != nil {
		return nil, services.Wrap(services.ErrWorkerError, f.Name(), "merge", "decode compiled "+key, err)
	}
	cur.Members = uniqueSorted(append(cur.Members, prev.Members...))
	cur.LatestMS = max(cur.LatestMS, prev.LatestMS)
	return json.Marshal(cur)
}

func uniqueSorted(values []string) []string {
	sort.Strings(values)
	out := values[:0]
	for i, v := range values {
		if i > 0 && v == values[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ProcessResults drops outputs that do not name a valid segment.
func (f *Segments) ProcessResults(outputs []worker.Output) ([]worker.Output, error) {
	sorted, err := sortOutputs(f.Name(), outputs)
	if err != nil {
		return nil, err
	}
	for _, out := range sorted {
		n, ok := ParseSegmentKey(out.ChunkKey)
		if !ok || n >= f.buckets {
			return nil, services.Wrap(services.ErrWorkerError, f.Name(), "process results", fmt.Sprintf("invalid segment key %q", out.ChunkKey), nil)
		}
	}
	return sorted, nil
}

// DedupeQuery returns the default dedup statement for the index table.
func (f *Segments) DedupeQuery(w dedup.Window) dedup.Statement {
	return dedup.Query(f.Name(), w)
}
