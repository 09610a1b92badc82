// Package channel implements the client side of the proxima protocol: one
// duplex connection to the service endpoint, a bounded listener registry that
// correlates replies to callers, and a single inbox goroutine that dispatches
// replies, request timeouts and disconnects in order.
//
// Callbacks run on the inbox goroutine, except for failures detected while
// sending, which run on the caller's goroutine before Send returns.
package channel
