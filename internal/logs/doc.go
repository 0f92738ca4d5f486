// Package logs reads the daemon's log file for the CLI.
//
// Last returns the trailing lines of the file together with the byte offset
// where reading stopped; Follow polls from an offset and hands each new line
// to a callback until the context ends.
package logs
