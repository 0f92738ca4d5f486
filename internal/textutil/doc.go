// Package textutil provides text normalization helpers shared by the queue
// writers and the index flavors.
//
// Chunk keys arrive from external writers in whatever Unicode form they were
// typed in. NormalizeKey folds them to NFC and strips surrounding whitespace so
// that two notifications for the same logical key collapse during dedup.
package textutil
