package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueRow describes a pending queue row.
type QueueRow struct {
	ID         int64  `json:"id"`
	Index      string `json:"index"`
	ChunkKey   string `json:"chunkKey"`
	EnqueuedAt string `json:"enqueuedAt,omitempty"`
}

// QueueListResponse wraps queue list results.
type QueueListResponse struct {
	Rows []QueueRow `json:"rows"`
}

// EnqueueRequest asks the daemon to append change notifications.
type EnqueueRequest struct {
	Index string   `json:"index"`
	Keys  []string `json:"keys"`
}

// EnqueueResponse reports the rows that were appended.
type EnqueueResponse struct {
	Rows []QueueRow `json:"rows"`
}

// Chunk is the latest compiled version of one chunk.
type Chunk struct {
	Index     string          `json:"index"`
	ChunkKey  string          `json:"chunkKey"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data,omitempty"`
	DataB64   string          `json:"dataBase64,omitempty"`
	UpdatedAt string          `json:"updatedAt,omitempty"`
}

// ChunkResponse wraps a chunk lookup.
type ChunkResponse struct {
	Chunk Chunk `json:"chunk"`
}

// ProcessorStatus summarizes one index processor.
type ProcessorStatus struct {
	Index          string `json:"index"`
	Running        bool   `json:"running"`
	State          string `json:"state"`
	QueueSize      int    `json:"queueSize"`
	ProcessedTotal int64  `json:"processedTotal"`
	ErrorsTotal    int64  `json:"errorsTotal"`
	LastError      string `json:"lastError,omitempty"`
	LastErrorKind  string `json:"lastErrorKind,omitempty"`
	LastCycleAt    string `json:"lastCycleAt,omitempty"`
	Cursor         int64  `json:"cursor"`
}

// PushStatus summarizes the client fan-out.
type PushStatus struct {
	Enabled     bool  `json:"enabled"`
	Subscribers int   `json:"subscribers"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
}

// CheckResult is a preflight check outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running      bool              `json:"running"`
	PID          int               `json:"pid"`
	DatabasePath string            `json:"databasePath"`
	LockFilePath string            `json:"lockFilePath"`
	Processors   []ProcessorStatus `json:"processors"`
	Push         PushStatus        `json:"push"`
	Checks       []CheckResult     `json:"checks,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}
