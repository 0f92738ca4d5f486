package queue

import (
	"context"
	"time"
)

// SaveArtifact records the encoded payload of a dispatched block. Saving the
// same id twice replaces the earlier payload.
func (s *Store) SaveArtifact(ctx context.Context, artifact BlockArtifact) error {
	if artifact.ID == "" || artifact.Index == "" {
		return invalid("save artifact", "id and index are required")
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	if artifact.Payload == nil {
		artifact.Payload = []byte{}
	}
	_, err := s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO block_artifacts (id, index_name, min_row_id, max_row_id, item_count, payload, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		artifact.ID,
		artifact.Index,
		artifact.MinRowID,
		artifact.MaxRowID,
		artifact.ItemCount,
		artifact.Payload,
		formatTime(artifact.CreatedAt),
	)
	if err != nil {
		return unavailable("save artifact", err)
	}
	return nil
}

// ListArtifacts returns artifacts for index ordered by their first row id.
func (s *Store) ListArtifacts(ctx context.Context, index string) ([]BlockArtifact, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, index_name, min_row_id, max_row_id, item_count, payload, created_at
         FROM block_artifacts WHERE index_name = ? ORDER BY min_row_id, created_at`,
		index,
	)
	if err != nil {
		return nil, unavailable("list artifacts", err)
	}
	defer rows.Close()

	var out []BlockArtifact
	for rows.Next() {
		var (
			artifact   BlockArtifact
			createdRaw string
		)
		if err := rows.Scan(&artifact.ID, &artifact.Index, &artifact.MinRowID, &artifact.MaxRowID,
			&artifact.ItemCount, &artifact.Payload, &createdRaw); err != nil {
			return nil, unavailable("list artifacts", err)
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			artifact.CreatedAt = created
		}
		out = append(out, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list artifacts", err)
	}
	return out, nil
}
