// Package index defines the per-flavor strategy a queue processor delegates to.
//
// A Flavor encodes a block of queue rows into the payload handed to a worker,
// compiles that payload into chunk outputs, post-processes the outputs before
// they are published, and may override the dedup statement for its table.
// Two flavors ship with chunkq:
//
//   - itemkeys: one chunk per item key, recording the pending event ids.
//   - segments: keys hash into a fixed number of buckets; each "segment/<n>"
//     chunk lists the member keys seen so far.
package index
