// Package dedup collapses repeated change notifications for the same chunk
// key inside a bounded id window.
//
// A Window covers the half-open id range (Cursor, Cursor+Limit]. Within it only
// the row with the smallest id survives for each chunk key; rows with a unique
// key are untouched. Query renders the rule as one parameterized SQL statement
// for the store, and Collapse applies the same rule to rows already in memory.
// Both are idempotent: applying them twice removes nothing the second time.
package dedup
