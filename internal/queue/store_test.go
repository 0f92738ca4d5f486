package queue_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"chunkq/internal/dedup"
	"chunkq/internal/queue"
	"chunkq/internal/services"
	"chunkq/internal/testsupport"
)

func keysOf(rows []queue.Row) []string {
	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.ChunkKey
	}
	return keys
}

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("missing tables: %v", health.MissingTables)
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("unexpected schema version %d", health.SchemaVersion)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened := testsupport.MustOpenStore(t, cfg)
	if _, err := reopened.Depth(context.Background(), "itemkeys"); err != nil {
		t.Fatalf("Depth after reopen: %v", err)
	}
}

func TestEnqueueAssignsIncreasingIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	rows := testsupport.MustEnqueue(t, store, "itemkeys", "a", " b ", "a")
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].ID <= rows[i-1].ID {
			t.Fatalf("ids not increasing: %v", testsupport.IDs(rows))
		}
	}
	if rows[1].ChunkKey != "b" {
		t.Fatalf("expected trimmed key, got %q", rows[1].ChunkKey)
	}

	if _, err := store.Enqueue(context.Background(), "itemkeys", "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank key, got %v", err)
	}
	if _, err := store.Enqueue(context.Background(), "", "x"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank index, got %v", err)
	}
}

func TestFetchSinceIsScopedAndOrdered(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	items := testsupport.MustEnqueue(t, store, "itemkeys", "a", "b", "c")
	testsupport.MustEnqueue(t, store, "segments", "z")

	rows, err := store.FetchSince(ctx, "itemkeys", items[0].ID, 10)
	if err != nil {
		t.Fatalf("FetchSince: %v", err)
	}
	if !reflect.DeepEqual(keysOf(rows), []string{"b", "c"}) {
		t.Fatalf("unexpected rows: %v", keysOf(rows))
	}

	limited, err := store.FetchSince(ctx, "itemkeys", 0, 2)
	if err != nil {
		t.Fatalf("FetchSince: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestDedupeKeepsMinimumIDAndIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rows := testsupport.MustEnqueue(t, store, "itemkeys", "A", "A", "B", "A", "C")
	window := dedup.Window{Cursor: rows[0].ID - 1, Limit: 10}

	removed, err := store.Dedupe(ctx, "itemkeys", window)
	if err != nil {
		t.Fatalf("Dedupe: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 rows removed, got %d", removed)
	}

	remaining, err := store.List(ctx, "itemkeys", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	wantIDs := []int64{rows[0].ID, rows[2].ID, rows[4].ID}
	if !reflect.DeepEqual(testsupport.IDs(remaining), wantIDs) {
		t.Fatalf("unexpected survivors %v want %v", testsupport.IDs(remaining), wantIDs)
	}
	if !reflect.DeepEqual(keysOf(remaining), []string{"A", "B", "C"}) {
		t.Fatalf("unexpected survivor keys %v", keysOf(remaining))
	}

	again, err := store.Dedupe(ctx, "itemkeys", window)
	if err != nil {
		t.Fatalf("second Dedupe: %v", err)
	}
	if again != 0 {
		t.Fatalf("second dedupe removed %d rows", again)
	}
}

func TestDedupeRespectsWindowAndIndex(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rows := testsupport.MustEnqueue(t, store, "itemkeys", "A", "A", "A")
	testsupport.MustEnqueue(t, store, "segments", "A", "A")

	window := dedup.Window{Cursor: rows[0].ID - 1, Limit: 2}
	removed, err := store.Dedupe(ctx, "itemkeys", window)
	if err != nil {
		t.Fatalf("Dedupe: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only the in-window duplicate removed, got %d", removed)
	}
	depth, err := store.Depth(ctx, "itemkeys")
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 2 {
		t.Fatalf("expected row beyond window to remain, depth=%d", depth)
	}
	other, err := store.Depth(ctx, "segments")
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if other != 2 {
		t.Fatalf("dedupe leaked into other index, depth=%d", other)
	}
}

func TestHeadSkipsVacuumedGap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rows := testsupport.MustEnqueue(t, store, "itemkeys", "a", "b", "c")
	if err := store.Vacuum(ctx, "itemkeys", testsupport.IDs(rows[:2])); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}

	head, ok, err := store.Head(ctx, "itemkeys", 0)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !ok || head != rows[2].ID {
		t.Fatalf("expected head %d, got %d (ok=%v)", rows[2].ID, head, ok)
	}
	if _, ok, _ := store.Head(ctx, "itemkeys", rows[2].ID); ok {
		t.Fatal("expected no head past last row")
	}
}

func TestVacuumBatchesAndArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.VacuumBatchSize = 2
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rows := testsupport.MustEnqueue(t, store, "itemkeys", "a", "b", "c", "d", "e")
	if err := store.SaveArtifact(ctx, queue.BlockArtifact{
		ID: "blk-1", Index: "itemkeys", MinRowID: rows[0].ID, MaxRowID: rows[2].ID, ItemCount: 3, Payload: []byte("p1"),
	}); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if err := store.SaveArtifact(ctx, queue.BlockArtifact{
		ID: "blk-2", Index: "itemkeys", MinRowID: rows[3].ID, MaxRowID: rows[4].ID, ItemCount: 2, Payload: []byte("p2"),
	}); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	if err := store.Vacuum(ctx, "itemkeys", testsupport.IDs(rows[:3])); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
	depth, err := store.Depth(ctx, "itemkeys")
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 2 {
		t.Fatalf("expected 2 rows left, got %d", depth)
	}
	artifacts, err := store.ListArtifacts(ctx, "itemkeys")
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].ID != "blk-2" {
		t.Fatalf("expected only pending artifact to remain, got %+v", artifacts)
	}
}

func TestPutChunkIncrementsVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var last int64
	for i := 0; i < 3; i++ {
		chunk, err := store.PutChunk(ctx, "itemkeys", "X", []byte{byte(i)})
		if err != nil {
			t.Fatalf("PutChunk: %v", err)
		}
		if chunk.Version != last+1 {
			t.Fatalf("expected version %d, got %d", last+1, chunk.Version)
		}
		last = chunk.Version
	}

	other, err := store.PutChunk(ctx, "segments", "X", []byte("s"))
	if err != nil {
		t.Fatalf("PutChunk: %v", err)
	}
	if other.Version != 1 {
		t.Fatalf("versions must be scoped per index, got %d", other.Version)
	}

	got, ok, err := store.GetChunk(ctx, "itemkeys", "X")
	if err != nil || !ok {
		t.Fatalf("GetChunk: ok=%v err=%v", ok, err)
	}
	if got.Version != 3 || !reflect.DeepEqual(got.Data, []byte{2}) {
		t.Fatalf("unexpected chunk %+v", got)
	}
	if _, ok, err := store.GetChunk(ctx, "itemkeys", "missing"); err != nil || ok {
		t.Fatalf("expected missing chunk, ok=%v err=%v", ok, err)
	}
}

func TestGetChunkWithoutCacheReadsDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.ChunkCacheSize = 0
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.PutChunk(ctx, "itemkeys", "k", []byte("v1")); err != nil {
		t.Fatalf("PutChunk: %v", err)
	}
	got, ok, err := store.GetChunk(ctx, "itemkeys", "k")
	if err != nil || !ok {
		t.Fatalf("GetChunk: ok=%v err=%v", ok, err)
	}
	if string(got.Data) != "v1" || got.Version != 1 || got.UpdatedAt.IsZero() {
		t.Fatalf("unexpected chunk %+v", got)
	}

	list, err := store.ListChunks(ctx, "itemkeys", 0)
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(list) != 1 || list[0].ChunkKey != "k" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestStatsGroupsByIndex(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rows := testsupport.MustEnqueue(t, store, "itemkeys", "a", "b")
	testsupport.MustEnqueue(t, store, "segments", "c")
	if _, err := store.PutChunk(ctx, "itemkeys", "a", []byte("x")); err != nil {
		t.Fatalf("PutChunk: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 || stats[0].Index != "itemkeys" || stats[1].Index != "segments" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats[0].PendingRows != 2 || stats[0].OldestRowID != rows[0].ID || stats[0].Chunks != 1 {
		t.Fatalf("unexpected itemkeys stats %+v", stats[0])
	}
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err := store.FetchSince(context.Background(), "itemkeys", 0, 10)
	if !errors.Is(err, services.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}
