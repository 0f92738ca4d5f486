// Package queue persists change notifications, compiled chunks and block
// artifacts in SQLite.
//
// The Store is the only component that touches the database. It exposes the
// append-only queue_rows table that external writers fill through Enqueue, the
// window reads and dedup deletes the processors issue each cycle, vacuum of
// processed rows, and the compiled_chunks table whose version column is bumped
// atomically on every successful publish.
//
// Rows are transient: a row lives from Enqueue until the block containing it
// has compiled and published, then vacuum deletes it. Compiled chunks are never
// deleted here. Schema changes bump schemaVersion; users clear the database to
// adopt the new schema.
//
// I/O failures are wrapped with services.ErrStoreUnavailable so callers can
// classify them without inspecting driver errors.
package queue
