// Package push fans freshly compiled chunks out to live clients.
//
// Clients subscribe to topics of the form "<index>:<chunk key>", "<index>:*" or
// "*". Every subscriber owns a bounded buffer; SendChunks never blocks, and a
// notification for a subscriber whose buffer is full is dropped and counted.
// Delivery is at-least-once at best: a client that misses a notification can
// always read the chunk back through the HTTP API.
package push
