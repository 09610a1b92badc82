package endpoint

import (
	"context"
	"time"

	"proxima/internal/protocol"
)

// InterfaceConfigurator brings up the mesh interface. Configure must be
// idempotent.
type InterfaceConfigurator interface {
	IsConfigured() bool
	Configure(ctx context.Context) error
}

// DaemonController manages the routing daemon process.
type DaemonController interface {
	IsRunning() bool
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NeighborSource reports the current neighbor set in source order.
type NeighborSource interface {
	CurrentNeighbors(ctx context.Context) ([]protocol.Neighbor, error)
}

// Recorder persists neighbor sightings.
type Recorder interface {
	Record(ctx context.Context, neighbors []protocol.Neighbor, at time.Time) error
}

// Observer receives counters and gauges.
type Observer interface {
	EnvelopeHandled(kind protocol.Kind)
	DiscoverFinished(outcome string)
	StateChanged(state State)
	ClientsChanged(n int)
}

// invalidator is implemented by configurators that cache their configured flag.
type invalidator interface {
	Invalidate()
}

type nopObserver struct{}

func (nopObserver) EnvelopeHandled(protocol.Kind) {}
func (nopObserver) DiscoverFinished(string)       {}
func (nopObserver) StateChanged(State)            {}
func (nopObserver) ClientsChanged(int)            {}
