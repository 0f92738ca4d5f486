package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

var expectedTables = []string{"schema_version", "queue_rows", "compiled_chunks", "block_artifacts"}

// Stats summarizes every index that has pending rows, chunks or artifacts.
func (s *Store) Stats(ctx context.Context) ([]IndexStats, error) {
	ctx = ensureContext(ctx)
	byIndex := make(map[string]*IndexStats)
	get := func(index string) *IndexStats {
		st, ok := byIndex[index]
		if !ok {
			st = &IndexStats{Index: index}
			byIndex[index] = st
		}
		return st
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT index_name, COUNT(1), MIN(id), MIN(enqueued_at) FROM queue_rows GROUP BY index_name`)
	if err != nil {
		return nil, unavailable("stats", err)
	}
	for rows.Next() {
		var (
			index     string
			count     int
			oldestID  int64
			oldestRaw sql.NullString
		)
		if err := rows.Scan(&index, &count, &oldestID, &oldestRaw); err != nil {
			rows.Close()
			return nil, unavailable("stats", err)
		}
		st := get(index)
		st.PendingRows = count
		st.OldestRowID = oldestID
		if oldest, err := parseTimeString(oldestRaw.String); err == nil {
			st.OldestQueued = oldest
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, unavailable("stats", err)
	}
	rows.Close()

	for _, table := range []string{"compiled_chunks", "block_artifacts"} {
		counts, err := s.db.QueryContext(ctx, `SELECT index_name, COUNT(1) FROM `+table+` GROUP BY index_name`)
		if err != nil {
			return nil, unavailable("stats", err)
		}
		for counts.Next() {
			var (
				index string
				count int
			)
			if err := counts.Scan(&index, &count); err != nil {
				counts.Close()
				return nil, unavailable("stats", err)
			}
			if table == "compiled_chunks" {
				get(index).Chunks = count
			} else {
				get(index).Artifacts = count
			}
		}
		if err := counts.Err(); err != nil {
			counts.Close()
			return nil, unavailable("stats", err)
		}
		counts.Close()
	}

	out := make([]IndexStats, 0, len(byIndex))
	for _, st := range byIndex {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, unavailable("ping", err)
	}
	health.DatabaseReadable = true

	present := make(map[string]struct{})
	tables, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, unavailable("list tables", err)
	}
	for tables.Next() {
		var name string
		if err := tables.Scan(&name); err != nil {
			tables.Close()
			health.Error = err.Error()
			return health, unavailable("list tables", err)
		}
		present[name] = struct{}{}
	}
	tables.Close()
	for _, name := range expectedTables {
		if _, ok := present[name]; ok {
			health.TablesPresent = append(health.TablesPresent, name)
		} else {
			health.MissingTables = append(health.MissingTables, name)
		}
	}
	if len(health.MissingTables) > 0 {
		return health, nil
	}

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, unavailable("schema version", err)
	}
	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM queue_rows").Scan(&health.TotalRows); err != nil {
		health.Error = err.Error()
		return health, unavailable("count rows", err)
	}
	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM compiled_chunks").Scan(&health.TotalChunks); err != nil {
		health.Error = err.Error()
		return health, unavailable("count chunks", err)
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, unavailable("integrity check", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}
