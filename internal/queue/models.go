package queue

import "time"

// Row is one pending change notification.
type Row struct {
	ID         int64
	Index      string
	ChunkKey   string
	EnqueuedAt time.Time
}

// CompiledChunk is the latest compiled payload for one chunk key.
type CompiledChunk struct {
	Index     string
	ChunkKey  string
	Version   int64
	Data      []byte
	UpdatedAt time.Time
}

// BlockArtifact is the encoded payload recorded when a block is dispatched.
type BlockArtifact struct {
	ID        string
	Index     string
	MinRowID  int64
	MaxRowID  int64
	ItemCount int
	Payload   []byte
	CreatedAt time.Time
}

// IndexStats summarizes one index's tables.
type IndexStats struct {
	Index        string
	PendingRows  int
	OldestRowID  int64
	OldestQueued time.Time
	Chunks       int
	Artifacts    int
}

// DatabaseHealth contains diagnostic information about the store.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	TotalRows        int
	TotalChunks      int
	IntegrityCheck   bool
	Error            string
}
