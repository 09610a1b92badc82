package testsupport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"proxima/internal/protocol"
)

// FakeInterface is an in-memory InterfaceConfigurator. When Gate is set,
// Configure blocks until it is closed.
type FakeInterface struct {
	Gate chan struct{}

	mu            sync.Mutex
	configured    bool
	err           error
	calls         atomic.Int32
	invalidations atomic.Int32
}

func (f *FakeInterface) IsConfigured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configured
}

func (f *FakeInterface) Configure(ctx context.Context) error {
	f.calls.Add(1)
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.configured = true
	return nil
}

func (f *FakeInterface) Invalidate() {
	f.invalidations.Add(1)
	f.mu.Lock()
	f.configured = false
	f.mu.Unlock()
}

// Fail makes every later Configure return err. Nil restores success.
func (f *FakeInterface) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *FakeInterface) Calls() int         { return int(f.calls.Load()) }
func (f *FakeInterface) Invalidations() int { return int(f.invalidations.Load()) }

// FakeDaemon is an in-memory DaemonController.
type FakeDaemon struct {
	mu      sync.Mutex
	running bool
	err     error
	starts  int
	stops   int
}

func (f *FakeDaemon) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *FakeDaemon) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.err != nil {
		return f.err
	}
	f.running = true
	return nil
}

func (f *FakeDaemon) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

// Fail makes every later Start return err. Nil restores success.
func (f *FakeDaemon) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Kill simulates the daemon process exiting on its own.
func (f *FakeDaemon) Kill() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *FakeDaemon) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *FakeDaemon) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// FakeNeighbors returns a fixed neighbor list. When Gate is set,
// CurrentNeighbors blocks until it is closed.
type FakeNeighbors struct {
	Gate chan struct{}

	mu        sync.Mutex
	neighbors []protocol.Neighbor
	err       error
	calls     int
}

// NewFakeNeighbors builds a source reporting the given addresses in order.
func NewFakeNeighbors(addresses ...string) *FakeNeighbors {
	f := &FakeNeighbors{}
	for _, addr := range addresses {
		f.neighbors = append(f.neighbors, protocol.Neighbor{Address: addr, State: "reachable"})
	}
	return f
}

func (f *FakeNeighbors) CurrentNeighbors(ctx context.Context) ([]protocol.Neighbor, error) {
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]protocol.Neighbor(nil), f.neighbors...), nil
}

func (f *FakeNeighbors) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *FakeNeighbors) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Route is a protocol.Route that records what it is sent.
type Route struct {
	id      string
	Replies chan protocol.Envelope
	Events  chan protocol.Envelope
	failing atomic.Bool
}

// NewRoute returns a recording route with buffered channels.
func NewRoute(id string) *Route {
	return &Route{
		id:      id,
		Replies: make(chan protocol.Envelope, 32),
		Events:  make(chan protocol.Envelope, 32),
	}
}

func (r *Route) ID() string { return r.id }

func (r *Route) Send(env protocol.Envelope) error {
	if r.failing.Load() {
		return fmt.Errorf("route %s: %w", r.id, protocol.ErrTransport)
	}
	r.Replies <- env
	return nil
}

func (r *Route) Notify(env protocol.Envelope) error {
	if r.failing.Load() {
		return fmt.Errorf("route %s: %w", r.id, protocol.ErrTransport)
	}
	r.Events <- env
	return nil
}

// Break makes every later Send and Notify fail.
func (r *Route) Break() { r.failing.Store(true) }
