// Package protocol defines the envelope exchanged between a proxima client
// channel and the service endpoint, the closed set of message kinds, and the
// length-prefixed CBOR framing used on the wire.
//
// Messages are a sealed sum type: every kind has exactly one body struct
// implementing Message, and handlers dispatch with an exhaustive type switch.
package protocol
