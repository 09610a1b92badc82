package neighbors

import (
	"context"
	"errors"
	"net"
	"testing"
)

func stubSource(entries []entry, dumpErr error) *Source {
	s := New("mesh0", nil)
	s.lookup = func(name string) (*net.Interface, error) {
		if name != "mesh0" {
			return nil, errors.New("no such interface")
		}
		return &net.Interface{Index: 7, Name: name}, nil
	}
	s.dump = func(context.Context) ([]entry, error) { return entries, dumpErr }
	return s
}

func TestCurrentNeighborsFiltersInterfaceAndState(t *testing.T) {
	s := stubSource([]entry{
		{ifindex: 7, state: nudStale, addr: "10.0.0.9", hwaddr: "aa:bb:cc:00:00:09"},
		{ifindex: 3, state: nudReachable, addr: "192.168.1.1"},
		{ifindex: 7, state: nudFailed, addr: "10.0.0.4"},
		{ifindex: 7, state: nudReachable, addr: "10.0.0.2", hwaddr: "aa:bb:cc:00:00:02"},
		{ifindex: 7, state: nudIncomplete, addr: "10.0.0.5"},
	}, nil)

	got, err := s.CurrentNeighbors(context.Background())
	if err != nil {
		t.Fatalf("CurrentNeighbors: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d neighbors, want 2: %+v", len(got), got)
	}
	if got[0].Address != "10.0.0.9" || got[0].State != "stale" || got[0].Interface != "mesh0" {
		t.Fatalf("first neighbor %+v", got[0])
	}
	if got[1].Address != "10.0.0.2" || got[1].HardwareAddr != "aa:bb:cc:00:00:02" || got[1].State != "reachable" {
		t.Fatalf("second neighbor %+v", got[1])
	}
}

func TestCurrentNeighborsPropagatesErrors(t *testing.T) {
	s := stubSource(nil, ErrUnsupported)
	if _, err := s.CurrentNeighbors(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	s = stubSource(nil, nil)
	s.ifaceName = "absent0"
	if _, err := s.CurrentNeighbors(context.Background()); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestStateName(t *testing.T) {
	cases := map[uint16]string{
		nudReachable:            "reachable",
		nudStale:                "stale",
		nudPermanent | nudNoARP: "permanent",
		nudProbe:                "probe",
		nudDelay:                "delay",
		0:                       "none",
	}
	for state, want := range cases {
		if got := stateName(state); got != want {
			t.Fatalf("stateName(%#x) = %q, want %q", state, got, want)
		}
	}
}
