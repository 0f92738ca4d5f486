// Package api defines wire-format types and converters for the HTTP API
// served by the daemon and consumed by the CLI. It translates queue rows,
// compiled chunks and processor status into transport-friendly DTOs so
// clients never couple to internal types.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds.
// Chunk data is passed through as json.RawMessage when it is valid JSON
// and base64 encoded otherwise.
package api
