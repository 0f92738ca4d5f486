package index

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"chunkq/internal/config"
	"chunkq/internal/dedup"
	"chunkq/internal/queue"
	"chunkq/internal/services"
	"chunkq/internal/worker"
)

func rows(keys ...string) []queue.Row {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]queue.Row, len(keys))
	for i, key := range keys {
		out[i] = queue.Row{ID: int64(i + 1), ChunkKey: key, EnqueuedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func compile(t *testing.T, f Flavor, in []queue.Row) []worker.Output {
	t.Helper()
	payload, err := f.EncodeBlock(in)
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	outputs, err := f.Compile(context.Background(), payload)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	processed, err := f.ProcessResults(outputs)
	if err != nil {
		t.Fatalf("ProcessResults: %v", err)
	}
	return processed
}

func TestItemKeysCompilesOneChunkPerKey(t *testing.T) {
	f := NewItemKeys()
	outputs := compile(t, f, rows("b", "a", "b"))
	if len(outputs) != 2 || outputs[0].ChunkKey != "a" || outputs[1].ChunkKey != "b" {
		t.Fatalf("unexpected outputs %+v", outputs)
	}
	var chunk ItemChunk
	if err := json.Unmarshal(outputs[1].Data, &chunk); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(chunk.Events, []int64{1, 3}) {
		t.Fatalf("unexpected events %v", chunk.Events)
	}
}

func TestItemKeysRejectsGarbage(t *testing.T) {
	_, err := NewItemKeys().Compile(context.Background(), []byte("not json"))
	if !errors.Is(err, services.ErrWorkerError) {
		t.Fatalf("expected worker error, got %v", err)
	}
}

func TestSegmentsBucketsKeys(t *testing.T) {
	f := NewSegments(4)
	in := rows("alpha", "beta", "gamma", "delta", "alpha")
	outputs := compile(t, f, in)

	seen := map[string]bool{}
	for _, out := range outputs {
		n, ok := ParseSegmentKey(out.ChunkKey)
		if !ok || n >= 4 {
			t.Fatalf("invalid segment key %q", out.ChunkKey)
		}
		var chunk SegmentChunk
		if err := json.Unmarshal(out.Data, &chunk); err != nil {
			t.Fatalf("decode: %v", err)
		}
		for _, m := range chunk.Members {
			if f.Bucket(m) != n {
				t.Fatalf("member %q landed in segment %d", m, n)
			}
			if seen[m] {
				t.Fatalf("member %q listed twice", m)
			}
			seen[m] = true
		}
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct members, got %v", seen)
	}
}

func TestSegmentsMergeAccumulatesMembers(t *testing.T) {
	f := NewSegments(1)
	prev, _ := json.Marshal(SegmentChunk{Segment: 0, Members: []string{"a", "c"}, LatestMS: 5})
	next, _ := json.Marshal(SegmentChunk{Segment: 0, Members: []string{"b", "c"}, LatestMS: 3})

	merged, err := f.Merge(SegmentKey(0), prev, next)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	var chunk SegmentChunk
	if err := json.Unmarshal(merged, &chunk); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(chunk.Members, []string{"a", "b", "c"}) || chunk.LatestMS != 5 {
		t.Fatalf("unexpected merge %+v", chunk)
	}
}

func TestSegmentsRejectsForeignKeys(t *testing.T) {
	f := NewSegments(2)
	_, err := f.ProcessResults([]worker.Output{{ChunkKey: "segment/9"}})
	if !errors.Is(err, services.ErrWorkerError) {
		t.Fatalf("expected worker error, got %v", err)
	}
	if _, ok := ParseSegmentKey("item/1"); ok {
		t.Fatal("expected parse failure")
	}
}

func TestBuildHonoursConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Indexes.Enabled = []string{SegmentsName}
	flavors, err := Build(&cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(flavors) != 1 || flavors[0].Name() != SegmentsName {
		t.Fatalf("unexpected flavors %v", flavors)
	}

	cfg.Indexes.Enabled = []string{"bogus"}
	if _, err := Build(&cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDedupeQueryScopedToFlavor(t *testing.T) {
	stmt := NewItemKeys().DedupeQuery(dedup.Window{Cursor: 0, Limit: 10})
	if len(stmt.Args) == 0 || stmt.Args[0] != ItemKeysName {
		t.Fatalf("unexpected args %v", stmt.Args)
	}
}
