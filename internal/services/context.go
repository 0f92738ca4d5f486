package services

import "context"

type contextKey string

const (
	indexKey     contextKey = "index"
	blockIDKey   contextKey = "block_id"
	stateKey     contextKey = "state"
	requestIDKey contextKey = "request_id"
)

// WithIndex annotates context with the index flavor being processed.
func WithIndex(ctx context.Context, index string) context.Context {
	if index == "" {
		return ctx
	}
	return context.WithValue(ctx, indexKey, index)
}

// IndexFromContext returns the index name if present.
func IndexFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(indexKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBlockID annotates context with the identifier of a dispatched block.
func WithBlockID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, blockIDKey, id)
}

// BlockIDFromContext returns the block identifier if present.
func BlockIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(blockIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithState annotates context with the processor state name.
func WithState(ctx context.Context, state string) context.Context {
	if state == "" {
		return ctx
	}
	return context.WithValue(ctx, stateKey, state)
}

// StateFromContext returns the processor state if present.
func StateFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stateKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
