package services_test

import (
	"context"
	"testing"

	"chunkq/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithIndex(ctx, "itemkeys")
	ctx = services.WithBlockID(ctx, "blk-1")
	ctx = services.WithState(ctx, "dispatching")
	ctx = services.WithRequestID(ctx, "req-123")

	if index, ok := services.IndexFromContext(ctx); !ok || index != "itemkeys" {
		t.Fatalf("unexpected index: %v %v", index, ok)
	}
	if id, ok := services.BlockIDFromContext(ctx); !ok || id != "blk-1" {
		t.Fatalf("unexpected block id: %v %v", id, ok)
	}
	if state, ok := services.StateFromContext(ctx); !ok || state != "dispatching" {
		t.Fatalf("unexpected state: %v %v", state, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithIndex(ctx, "")
	ctx = services.WithBlockID(ctx, "")
	if _, ok := services.IndexFromContext(ctx); ok {
		t.Fatal("expected no index value")
	}
	if _, ok := services.BlockIDFromContext(ctx); ok {
		t.Fatal("expected no block id value")
	}
}
