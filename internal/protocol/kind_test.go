package protocol_test

import (
	"errors"
	"testing"

	"proxima/internal/protocol"
)

func TestKindClassification(t *testing.T) {
	correlated := map[protocol.Kind]bool{
		protocol.KindRegisterClient:             false,
		protocol.KindUnregisterClient:           false,
		protocol.KindDiscoverNeighbors:          true,
		protocol.KindDiscoverNeighborsSucceeded: true,
		protocol.KindDiscoverNeighborsFailed:    true,
		protocol.KindRequestNeighbors:           true,
		protocol.KindResponseNeighbors:          true,
		protocol.KindChannelDisconnected:        false,
		protocol.KindNeighborsChanged:           false,
	}
	for kind, want := range correlated {
		if !kind.Valid() {
			t.Fatalf("%s should be valid", kind)
		}
		if kind.Correlated() != want {
			t.Fatalf("%s correlated = %v, want %v", kind, kind.Correlated(), want)
		}
	}
	if protocol.KindInvalid.Valid() {
		t.Fatal("zero kind should be invalid")
	}
	if got := protocol.Kind(99).String(); got != "kind(99)" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestEmptyBodyRejectsPayloadKinds(t *testing.T) {
	for _, kind := range []protocol.Kind{protocol.KindDiscoverNeighborsFailed, protocol.KindResponseNeighbors, protocol.KindInvalid} {
		if _, err := protocol.EmptyBody(kind); !errors.Is(err, protocol.ErrUnknownMessage) {
			t.Fatalf("%s: expected ErrUnknownMessage, got %v", kind, err)
		}
	}
	body, err := protocol.EmptyBody(protocol.KindDiscoverNeighbors)
	if err != nil || body.Kind() != protocol.KindDiscoverNeighbors {
		t.Fatalf("unexpected body %v err %v", body, err)
	}
}
