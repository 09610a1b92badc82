// Package daemon coordinates the long-running proxima service process.
//
// It wires configuration, the service endpoint, the client transport server,
// the routing daemon controller, the interface link monitor, the sightings
// history and the metrics endpoint into a single lifecycle with flock-based
// locking to prevent multiple instances.
//
// Keep orchestration here: protocol handling lives in internal/endpoint and
// the wire format in internal/transport.
package daemon
