// Command chunkq runs the chunked-index compiler daemon and offers operator
// commands for enqueueing change notifications, inspecting the queue and
// compiled chunks, and checking daemon status.
package main
