package queue

import (
	"errors"
	"time"
)

const rowColumns = "id, index_name, chunk_key, enqueued_at"

func scanRow(scanner interface{ Scan(dest ...any) error }) (Row, error) {
	var (
		row         Row
		enqueuedRaw string
	)
	if err := scanner.Scan(&row.ID, &row.Index, &row.ChunkKey, &enqueuedRaw); err != nil {
		return Row{}, err
	}
	if enqueued, err := parseTimeString(enqueuedRaw); err == nil {
		row.EnqueuedAt = enqueued
	}
	return row, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func batches(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]int64
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
