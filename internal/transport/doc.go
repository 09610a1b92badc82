// Package transport carries protocol envelopes over a unix socket. Every
// connection is a yamux session with two streams: the RPC stream, opened by
// the client, carries requests and their replies; the events stream, opened
// by the server, carries broadcasts.
package transport
