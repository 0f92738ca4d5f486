package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chunkq/internal/dedup"
	"chunkq/internal/textutil"
)

// Enqueue appends one row per key for index. Keys are normalized; repeated
// keys are kept as separate rows and collapse later during dedup.
func (s *Store) Enqueue(ctx context.Context, index string, keys ...string) ([]Row, error) {
	ctx = ensureContext(ctx)
	index = strings.TrimSpace(index)
	if index == "" {
		return nil, invalid("enqueue", "index is required")
	}
	if len(keys) == 0 {
		return nil, nil
	}
	normalized := make([]string, len(keys))
	for i, key := range keys {
		value, err := textutil.NormalizeKey(key)
		if err != nil {
			return nil, invalid("enqueue", fmt.Sprintf("key %d: %v", i, err))
		}
		normalized[i] = value
	}

	var rows []Row
	err := retryOnBusy(ctx, func() error {
		rows = rows[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO queue_rows (index_name, chunk_key, enqueued_at) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, key := range normalized {
			res, err := stmt.ExecContext(ctx, index, key, formatTime(now))
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			rows = append(rows, Row{ID: id, Index: index, ChunkKey: key, EnqueuedAt: now})
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, unavailable("enqueue", err)
	}
	return rows, nil
}

// Head returns the smallest pending id greater than cursor.
func (s *Store) Head(ctx context.Context, index string, cursor int64) (int64, bool, error) {
	ctx = ensureContext(ctx)
	var head sql.NullInt64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT MIN(id) FROM queue_rows WHERE index_name = ? AND id > ?`,
			index, cursor,
		).Scan(&head)
	})
	if err != nil {
		return 0, false, unavailable("head", err)
	}
	return head.Int64, head.Valid, nil
}

// FetchSince returns up to limit rows with id greater than cursor in id order.
func (s *Store) FetchSince(ctx context.Context, index string, cursor int64, limit int) ([]Row, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		return nil, nil
	}
	var out []Row
	err := retryOnBusy(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+rowColumns+` FROM queue_rows WHERE index_name = ? AND id > ? ORDER BY id LIMIT ?`,
			index, cursor, limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			row, err := scanRow(rows)
			if err != nil {
				return err
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, unavailable("fetch", err)
	}
	return out, nil
}

// Dedupe removes repeated keys inside the window, keeping the smallest id per
// key. It returns the number of deleted rows.
func (s *Store) Dedupe(ctx context.Context, index string, window dedup.Window) (int64, error) {
	return s.DedupeWith(ctx, dedup.Query(index, window))
}

// DedupeWith executes a prepared dedup statement in one round trip.
func (s *Store) DedupeWith(ctx context.Context, stmt dedup.Statement) (int64, error) {
	if stmt.Empty() {
		return 0, nil
	}
	res, err := s.execWithRetry(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, unavailable("dedupe", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("dedupe", err)
	}
	return affected, nil
}

// Vacuum deletes processed rows in batches, then drops block artifacts whose
// row range no longer holds pending rows. Batch failures do not stop later
// batches; all failures are joined into the returned error.
func (s *Store) Vacuum(ctx context.Context, index string, ids []int64) error {
	ctx = ensureContext(ctx)
	var errs []error
	for _, batch := range batches(ids, s.vacuumBatch) {
		args := make([]any, 0, len(batch)+1)
		args = append(args, index)
		for _, id := range batch {
			args = append(args, id)
		}
		query := `DELETE FROM queue_rows WHERE index_name = ? AND id IN (` + makePlaceholders(len(batch)) + `)`
		if _, err := s.execWithRetry(ctx, query, args...); err != nil {
			errs = append(errs, fmt.Errorf("batch %d-%d: %w", batch[0], batch[len(batch)-1], err))
		}
	}
	if _, err := s.execWithRetry(ctx,
		`DELETE FROM block_artifacts
         WHERE index_name = ?
           AND NOT EXISTS (
             SELECT 1 FROM queue_rows
             WHERE queue_rows.index_name = block_artifacts.index_name
               AND queue_rows.id BETWEEN block_artifacts.min_row_id AND block_artifacts.max_row_id
           )`,
		index,
	); err != nil {
		errs = append(errs, fmt.Errorf("artifacts: %w", err))
	}
	if len(errs) > 0 {
		return unavailable("vacuum", errors.Join(errs...))
	}
	return nil
}

// Depth returns the number of pending rows for index.
func (s *Store) Depth(ctx context.Context, index string) (int, error) {
	ctx = ensureContext(ctx)
	var depth int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_rows WHERE index_name = ?`, index).Scan(&depth)
	})
	if err != nil {
		return 0, unavailable("depth", err)
	}
	return depth, nil
}

// List returns pending rows in id order. An empty index lists every index.
func (s *Store) List(ctx context.Context, index string, limit int) ([]Row, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + rowColumns + ` FROM queue_rows`
	var args []any
	if index != "" {
		query += ` WHERE index_name = ?`
		args = append(args, index)
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, unavailable("list", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return out, nil
}
