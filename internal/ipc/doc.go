// Package ipc exposes daemon control over JSON-RPC on a Unix socket and ships
// the matching client used by the CLI.
//
// This is the operator control plane only. Mesh clients talk to the service
// endpoint over internal/transport.
package ipc
