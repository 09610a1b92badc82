// Package main hosts the proxima CLI entrypoint and command graph.
//
// Daemon lifecycle commands (start, stop, restart, status, history) talk to
// proximad over its JSON-RPC control socket. Mesh commands (discover,
// neighbors, watch) open a channel to the endpoint socket and use the same
// request/listener protocol as any other client.
package main
