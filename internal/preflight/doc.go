// Package preflight provides readiness checks for the filesystem paths and
// queue database chunkq depends on.
//
// The daemon runs RunAll before starting processors and refuses to start
// when a check fails. The CLI "chunkq status" command prints the same
// results so operators see why a daemon would not come up.
package preflight
