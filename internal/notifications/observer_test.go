package notifications_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"proxima/internal/endpoint"
	"proxima/internal/notifications"
	"proxima/internal/protocol"
)

type fakeService struct {
	events chan string
}

func newFakeService() *fakeService { return &fakeService{events: make(chan string, 8)} }

func (f *fakeService) NotifyDiscoveryRunning(_ context.Context, iface string) error {
	f.events <- "running:" + iface
	return nil
}

func (f *fakeService) NotifyDiscoveryStopped(_ context.Context, iface, cause string) error {
	f.events <- "stopped:" + iface + ":" + cause
	return nil
}

func (f *fakeService) NotifyDiscoveryFailed(_ context.Context, iface, outcome string) error {
	f.events <- "failed:" + iface + ":" + outcome
	return nil
}

func (f *fakeService) NotifyError(context.Context, error, string) error { return nil }
func (f *fakeService) TestNotification(context.Context) error           { return nil }

type countingObserver struct {
	mu       sync.Mutex
	states   []endpoint.State
	outcomes []string
	kinds    int
	clients  int
}

func (c *countingObserver) EnvelopeHandled(protocol.Kind) {
	c.mu.Lock()
	c.kinds++
	c.mu.Unlock()
}

func (c *countingObserver) DiscoverFinished(outcome string) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, outcome)
	c.mu.Unlock()
}

func (c *countingObserver) StateChanged(state endpoint.State) {
	c.mu.Lock()
	c.states = append(c.states, state)
	c.mu.Unlock()
}

func (c *countingObserver) ClientsChanged(n int) {
	c.mu.Lock()
	c.clients = n
	c.mu.Unlock()
}

func expectEvent(t *testing.T, events <-chan string, want string) {
	t.Helper()
	select {
	case got := <-events:
		if got != want {
			t.Fatalf("event %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no %q notification", want)
	}
}

func TestObserverAlertsOnTransitions(t *testing.T) {
	svc := newFakeService()
	next := &countingObserver{}
	obs := notifications.NewObserver(svc, next, "wlan0", nil)
	t.Cleanup(obs.Close)
	obs.SetDetail(func() string { return "link lost" })

	obs.StateChanged(endpoint.Idle)
	obs.StateChanged(endpoint.Configuring)
	obs.StateChanged(endpoint.Running)
	expectEvent(t, svc.events, "running:wlan0")

	obs.StateChanged(endpoint.Idle)
	expectEvent(t, svc.events, "stopped:wlan0:link lost")

	obs.DiscoverFinished(endpoint.OutcomeDaemon)
	expectEvent(t, svc.events, "failed:wlan0:daemon_failed")

	obs.DiscoverFinished(endpoint.OutcomeSucceeded)
	obs.StateChanged(endpoint.Configuring)
	obs.StateChanged(endpoint.Idle)
	select {
	case got := <-svc.events:
		t.Fatalf("unexpected notification %q", got)
	case <-time.After(50 * time.Millisecond):
	}

	obs.EnvelopeHandled(protocol.KindDiscoverNeighbors)
	obs.ClientsChanged(3)
	next.mu.Lock()
	defer next.mu.Unlock()
	if len(next.states) != 6 || len(next.outcomes) != 2 || next.kinds != 1 || next.clients != 3 {
		t.Fatalf("observer calls not forwarded: %+v", next)
	}
}
