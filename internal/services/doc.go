// Package services defines shared utilities consumed by the queue processors
// and the components they drive.
//
// Key responsibilities:
//   - Context helpers that stamp index names, block identifiers, processor
//     states, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the retry taxonomy (store unavailable, worker timeout, worker
//     error, publish failure).
//
// Use these helpers when wiring new index flavors so operational behaviour
// (error handling, observability, retries) stays uniform across processors.
package services
