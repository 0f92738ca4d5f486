package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PutChunk stores data as the newest version of the chunk. The version starts
// at 1 and increments on every write to the same key.
func (s *Store) PutChunk(ctx context.Context, index, key string, data []byte) (CompiledChunk, error) {
	ctx = ensureContext(ctx)
	if index == "" || key == "" {
		return CompiledChunk{}, invalid("put chunk", "index and key are required")
	}
	if data == nil {
		data = []byte{}
	}
	now := time.Now().UTC()
	var version int64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`INSERT INTO compiled_chunks (index_name, chunk_key, version, data, updated_at)
             VALUES (?, ?, 1, ?, ?)
             ON CONFLICT(index_name, chunk_key) DO UPDATE SET
                 version = compiled_chunks.version + 1,
                 data = excluded.data,
                 updated_at = excluded.updated_at
             RETURNING version`,
			index, key, data, formatTime(now),
		).Scan(&version)
	})
	if err != nil {
		return CompiledChunk{}, unavailable("put chunk", err)
	}

	chunk := CompiledChunk{Index: index, ChunkKey: key, Version: version, Data: data, UpdatedAt: now}
	if s.chunks != nil {
		s.chunks.Add(chunkRef{index: index, key: key}, chunk)
	}
	return chunk, nil
}

// GetChunk returns the latest compiled chunk for key. Reads are served from
// the in-process cache when possible.
func (s *Store) GetChunk(ctx context.Context, index, key string) (CompiledChunk, bool, error) {
	ctx = ensureContext(ctx)
	ref := chunkRef{index: index, key: key}
	if s.chunks != nil {
		if chunk, ok := s.chunks.Get(ref); ok {
			return chunk, true, nil
		}
	}

	var (
		chunk      = CompiledChunk{Index: index, ChunkKey: key}
		updatedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data, updated_at FROM compiled_chunks WHERE index_name = ? AND chunk_key = ?`,
		index, key,
	).Scan(&chunk.Version, &chunk.Data, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return CompiledChunk{}, false, nil
	}
	if err != nil {
		return CompiledChunk{}, false, unavailable("get chunk", err)
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		chunk.UpdatedAt = updated
	}
	if s.chunks != nil {
		s.chunks.Add(ref, chunk)
	}
	return chunk, true, nil
}

// ListChunks returns compiled chunks for index ordered by key. Data is omitted;
// use GetChunk for payloads.
func (s *Store) ListChunks(ctx context.Context, index string, limit int) ([]CompiledChunk, error) {
	ctx = ensureContext(ctx)
	query := `SELECT chunk_key, version, updated_at FROM compiled_chunks WHERE index_name = ? ORDER BY chunk_key`
	args := []any{index}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list chunks", err)
	}
	defer rows.Close()

	var out []CompiledChunk
	for rows.Next() {
		chunk := CompiledChunk{Index: index}
		var updatedRaw string
		if err := rows.Scan(&chunk.ChunkKey, &chunk.Version, &updatedRaw); err != nil {
			return nil, unavailable("list chunks", err)
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			chunk.UpdatedAt = updated
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list chunks", err)
	}
	return out, nil
}
