package protocol

import "fmt"

// Kind tags an envelope. The set is closed; Valid reports membership.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindRegisterClient
	KindUnregisterClient
	KindDiscoverNeighbors
	KindDiscoverNeighborsSucceeded
	KindDiscoverNeighborsFailed
	KindRequestNeighbors
	KindResponseNeighbors
	KindChannelDisconnected
	KindNeighborsChanged
	kindCount
)

var kindNames = [...]string{
	KindInvalid:                    "invalid",
	KindRegisterClient:             "register_client",
	KindUnregisterClient:           "unregister_client",
	KindDiscoverNeighbors:          "discover_neighbors",
	KindDiscoverNeighborsSucceeded: "discover_neighbors_succeeded",
	KindDiscoverNeighborsFailed:    "discover_neighbors_failed",
	KindRequestNeighbors:           "request_neighbors",
	KindResponseNeighbors:          "response_neighbors",
	KindChannelDisconnected:        "channel_disconnected",
	KindNeighborsChanged:           "neighbors_changed",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k > KindInvalid && k < kindCount
}

// Correlated reports whether envelopes of this kind carry a listener key.
func (k Kind) Correlated() bool {
	switch k {
	case KindDiscoverNeighbors, KindDiscoverNeighborsSucceeded, KindDiscoverNeighborsFailed,
		KindRequestNeighbors, KindResponseNeighbors:
		return true
	default:
		return false
	}
}

// LocalOnly reports whether the kind is posted inside a process and never
// framed onto a connection.
func (k Kind) LocalOnly() bool {
	return k == KindChannelDisconnected
}
