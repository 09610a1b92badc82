// Package endpoint is the service side of the proxima protocol.
//
// An Endpoint owns the discovery lifecycle (Idle, Configuring, Running) and
// the list of connected client routes. Every inbound envelope, worker
// completion and link event passes through one inbox goroutine; interface
// configuration, routing daemon start and neighbor queries run on worker
// goroutines that post their outcome back to that inbox.
package endpoint
