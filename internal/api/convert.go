package api

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"chunkq/internal/preflight"
	"chunkq/internal/queue"
	"chunkq/internal/status"
)

// FromRow converts a queue row to its API representation.
func FromRow(row queue.Row) QueueRow {
	return QueueRow{
		ID:         row.ID,
		Index:      row.Index,
		ChunkKey:   row.ChunkKey,
		EnqueuedAt: formatTime(row.EnqueuedAt),
	}
}

// FromRows converts rows in order. A nil input yields an empty slice so
// clients always see a JSON array.
func FromRows(rows []queue.Row) []QueueRow {
	out := make([]QueueRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromRow(row))
	}
	return out
}

// FromChunk converts a compiled chunk. JSON payloads are embedded as-is.
func FromChunk(chunk queue.CompiledChunk) Chunk {
	dto := Chunk{
		Index:     chunk.Index,
		ChunkKey:  chunk.ChunkKey,
		Version:   chunk.Version,
		UpdatedAt: formatTime(chunk.UpdatedAt),
	}
	if len(chunk.Data) > 0 {
		if json.Valid(chunk.Data) {
			dto.Data = json.RawMessage(chunk.Data)
		} else {
			dto.DataB64 = base64.StdEncoding.EncodeToString(chunk.Data)
		}
	}
	return dto
}

// Payload returns the raw chunk bytes regardless of how they were encoded.
func (c Chunk) Payload() ([]byte, error) {
	if c.DataB64 != "" {
		return base64.StdEncoding.DecodeString(c.DataB64)
	}
	return []byte(c.Data), nil
}

// FromProcessorStatus converts a processor status snapshot.
func FromProcessorStatus(st status.ProcessorStatus) ProcessorStatus {
	return ProcessorStatus{
		Index:          st.Index,
		Running:        st.Running,
		State:          st.State,
		QueueSize:      st.QueueSize,
		ProcessedTotal: st.ProcessedTotal,
		ErrorsTotal:    st.ErrorsTotal,
		LastError:      st.LastError,
		LastErrorKind:  st.LastErrorKind,
		LastCycleAt:    formatTime(st.LastCycleAt),
		Cursor:         st.Cursor,
	}
}

// FromProcessorStatuses converts snapshots in order.
func FromProcessorStatuses(statuses []status.ProcessorStatus) []ProcessorStatus {
	out := make([]ProcessorStatus, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, FromProcessorStatus(st))
	}
	return out
}

// FromCheckResults converts preflight results.
func FromCheckResults(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, len(results))
	for i, r := range results {
		out[i] = CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
