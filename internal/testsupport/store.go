package testsupport

import (
	"context"
	"testing"

	"chunkq/internal/config"
	"chunkq/internal/queue"
)

// MustOpenStore opens a queue store for the provided config and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustEnqueue appends keys for index and returns the inserted rows.
func MustEnqueue(t testing.TB, store *queue.Store, index string, keys ...string) []queue.Row {
	t.Helper()

	rows, err := store.Enqueue(context.Background(), index, keys...)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return rows
}

// IDs returns the ids of rows in order.
func IDs(rows []queue.Row) []int64 {
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids
}
