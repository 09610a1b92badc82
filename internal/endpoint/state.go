package endpoint

import (
	"sync"
	"time"

	"proxima/internal/protocol"
)

// State is the discovery lifecycle phase.
type State int

const (
	Idle State = iota
	Configuring
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configuring:
		return "configuring"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// ParseState maps a state name back to its value.
func ParseState(name string) (State, bool) {
	switch name {
	case "idle":
		return Idle, true
	case "configuring":
		return Configuring, true
	case "running":
		return Running, true
	default:
		return Idle, false
	}
}

// Status is a point-in-time view of the endpoint.
type Status struct {
	State     State
	Since     time.Time
	Clients   int
	Waiters   int
	Attempts  int
	LastError string
}

// state is everything the endpoint mutates, behind one lock.
type state struct {
	mu        sync.Mutex
	phase     State
	since     time.Time
	routes    []protocol.Route
	waiters   []protocol.Envelope
	attempts  int
	lastError string
}

func (s *state) setPhase(phase State, now time.Time) {
	if s.phase != phase {
		s.phase = phase
		s.since = now
	}
}

func (s *state) addRoute(r protocol.Route) bool {
	for _, existing := range s.routes {
		if existing.ID() == r.ID() {
			return false
		}
	}
	s.routes = append(s.routes, r)
	return true
}

func (s *state) removeRoute(id string) bool {
	for i, existing := range s.routes {
		if existing.ID() == id {
			s.routes = append(s.routes[:i], s.routes[i+1:]...)
			return true
		}
	}
	return false
}

func (s *state) snapshot() Status {
	return Status{
		State:     s.phase,
		Since:     s.since,
		Clients:   len(s.routes),
		Waiters:   len(s.waiters),
		Attempts:  s.attempts,
		LastError: s.lastError,
	}
}
