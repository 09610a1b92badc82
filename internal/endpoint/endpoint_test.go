package endpoint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"proxima/internal/endpoint"
	"proxima/internal/protocol"
	"proxima/internal/registry"
	"proxima/internal/testsupport"
)

type harness struct {
	ep        *endpoint.Endpoint
	iface     *testsupport.FakeInterface
	daemon    *testsupport.FakeDaemon
	neighbors *testsupport.FakeNeighbors
}

func newHarness(t *testing.T, iface *testsupport.FakeInterface) *harness {
	t.Helper()
	if iface == nil {
		iface = &testsupport.FakeInterface{}
	}
	h := &harness{
		iface:     iface,
		daemon:    &testsupport.FakeDaemon{},
		neighbors: testsupport.NewFakeNeighbors("10.0.0.3", "10.0.0.1", "10.0.0.2"),
	}
	ep, err := endpoint.New(context.Background(), endpoint.Options{
		Interface: h.iface,
		Daemon:    h.daemon,
		Neighbors: h.neighbors,
	})
	if err != nil {
		t.Fatalf("endpoint.New: %v", err)
	}
	t.Cleanup(ep.Close)
	h.ep = ep
	return h
}

func post(t *testing.T, ep *endpoint.Endpoint, body protocol.Message, key registry.Key, route protocol.Route) {
	t.Helper()
	if err := ep.Post(protocol.NewEnvelope(body, key, route)); err != nil {
		t.Fatalf("post %s: %v", body.Kind(), err)
	}
}

func nextReply(t *testing.T, r *testsupport.Route) protocol.Envelope {
	t.Helper()
	select {
	case env := <-r.Replies:
		return env
	case <-time.After(5 * time.Second):
		t.Fatalf("no reply on route %s", r.ID())
		return protocol.Envelope{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDiscoverSucceedsAndBroadcasts(t *testing.T) {
	h := newHarness(t, nil)
	route := testsupport.NewRoute("a")
	post(t, h.ep, protocol.RegisterClient{}, registry.NoKey, route)
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|1), route)

	reply := nextReply(t, route)
	if _, ok := reply.Body.(protocol.DiscoverNeighborsSucceeded); !ok {
		t.Fatalf("expected success, got %+v", reply.Body)
	}
	if reply.Key != registry.Key(1<<32|1) {
		t.Fatalf("reply key %d did not echo the request", reply.Key)
	}
	select {
	case env := <-route.Events:
		changed, ok := env.Body.(protocol.NeighborsChanged)
		if !ok || changed.State != "running" {
			t.Fatalf("unexpected broadcast %+v", env.Body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no neighbors-changed broadcast")
	}
	if st := h.ep.Status(); st.State != endpoint.Running || st.Clients != 1 || st.Attempts != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestDiscoverWhileRunningIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	route := testsupport.NewRoute("a")
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|1), route)
	nextReply(t, route)

	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(2<<32|1), route)
	reply := nextReply(t, route)
	if _, ok := reply.Body.(protocol.DiscoverNeighborsSucceeded); !ok {
		t.Fatalf("expected immediate success, got %+v", reply.Body)
	}
	if h.iface.Calls() != 1 || h.daemon.Starts() != 1 {
		t.Fatalf("collaborators re-invoked: configure=%d start=%d", h.iface.Calls(), h.daemon.Starts())
	}
	if got := h.ep.Status().Attempts; got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestDaemonFailureReturnsToIdleAndAllowsRetry(t *testing.T) {
	h := newHarness(t, nil)
	h.daemon.Fail(errors.New("olsrd exited"))
	route := testsupport.NewRoute("a")
	post(t, h.ep, protocol.RegisterClient{}, registry.NoKey, route)
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|1), route)

	reply := nextReply(t, route)
	failed, ok := reply.Body.(protocol.DiscoverNeighborsFailed)
	if !ok || failed.Reason != protocol.ReasonDaemon {
		t.Fatalf("expected daemon failure, got %+v", reply.Body)
	}
	st := h.ep.Status()
	if st.State != endpoint.Idle || st.LastError == "" {
		t.Fatalf("expected Idle with last error, got %+v", st)
	}
	select {
	case env := <-route.Events:
		t.Fatalf("failure must not broadcast, got %+v", env.Body)
	default:
	}

	h.daemon.Fail(nil)
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(2<<32|1), route)
	reply = nextReply(t, route)
	if _, ok := reply.Body.(protocol.DiscoverNeighborsSucceeded); !ok {
		t.Fatalf("retry should succeed, got %+v", reply.Body)
	}
	if h.daemon.Starts() != 2 {
		t.Fatalf("expected a second start attempt, got %d", h.daemon.Starts())
	}
}

func TestInterfaceFailureReportsInterfaceReason(t *testing.T) {
	iface := &testsupport.FakeInterface{}
	iface.Fail(errors.New("iwconfig failed"))
	h := newHarness(t, iface)
	route := testsupport.NewRoute("a")
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|1), route)

	reply := nextReply(t, route)
	failed, ok := reply.Body.(protocol.DiscoverNeighborsFailed)
	if !ok || failed.Reason != protocol.ReasonInterface {
		t.Fatalf("expected interface failure, got %+v", reply.Body)
	}
	if h.daemon.Starts() != 0 {
		t.Fatal("daemon must not start when the interface failed")
	}
	if h.ep.Status().State != endpoint.Idle {
		t.Fatalf("state %s, want idle", h.ep.Status().State)
	}
}

func TestConcurrentDiscoverRunsOneAttempt(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, &testsupport.FakeInterface{Gate: gate})
	a := testsupport.NewRoute("a")
	b := testsupport.NewRoute("b")
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|1), a)
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|2), b)

	waitFor(t, "second request to join", func() bool {
		st := h.ep.Status()
		return st.State == endpoint.Configuring && st.Waiters == 2
	})
	close(gate)

	for _, r := range []*testsupport.Route{a, b} {
		reply := nextReply(t, r)
		if _, ok := reply.Body.(protocol.DiscoverNeighborsSucceeded); !ok {
			t.Fatalf("route %s: expected success, got %+v", r.ID(), reply.Body)
		}
	}
	if h.iface.Calls() != 1 || h.daemon.Starts() != 1 {
		t.Fatalf("expected one attempt, got configure=%d start=%d", h.iface.Calls(), h.daemon.Starts())
	}
}

func TestRequestNeighborsOutsideRunningIsEmpty(t *testing.T) {
	h := newHarness(t, nil)
	route := testsupport.NewRoute("a")
	post(t, h.ep, protocol.RequestNeighbors{}, registry.Key(4<<32|1), route)

	reply := nextReply(t, route)
	resp, ok := reply.Body.(protocol.ResponseNeighbors)
	if !ok || len(resp.Neighbors) != 0 {
		t.Fatalf("expected empty list, got %+v", reply.Body)
	}
	if reply.Key != registry.Key(4<<32|1) {
		t.Fatalf("reply key %d", reply.Key)
	}
	if h.neighbors.Calls() != 0 {
		t.Fatal("neighbor source consulted while idle")
	}
}

func TestRequestNeighborsWhileRunningKeepsSourceOrder(t *testing.T) {
	h := newHarness(t, nil)
	route := testsupport.NewRoute("a")
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|1), route)
	nextReply(t, route)

	post(t, h.ep, protocol.RequestNeighbors{}, registry.Key(2<<32|1), route)
	reply := nextReply(t, route)
	resp, ok := reply.Body.(protocol.ResponseNeighbors)
	if !ok {
		t.Fatalf("expected neighbor list, got %+v", reply.Body)
	}
	got := protocol.Addresses(resp.Neighbors)
	want := []string{"10.0.0.3", "10.0.0.1", "10.0.0.2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDisconnectIsIdempotentAndBrokenRoutesAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	a := testsupport.NewRoute("a")
	b := testsupport.NewRoute("b")
	post(t, h.ep, protocol.RegisterClient{}, registry.NoKey, a)
	post(t, h.ep, protocol.RegisterClient{}, registry.NoKey, a)
	post(t, h.ep, protocol.RegisterClient{}, registry.NoKey, b)
	waitFor(t, "two clients", func() bool { return h.ep.Status().Clients == 2 })

	post(t, h.ep, protocol.UnregisterClient{}, registry.NoKey, a)
	post(t, h.ep, protocol.ChannelDisconnected{}, registry.NoKey, a)
	waitFor(t, "one client", func() bool { return h.ep.Status().Clients == 1 })

	b.Break()
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|1), testsupport.NewRoute("c"))
	waitFor(t, "broken route removal", func() bool { return h.ep.Status().Clients == 0 })
}

func TestLinkLostAndDaemonExitDropToIdle(t *testing.T) {
	h := newHarness(t, nil)
	route := testsupport.NewRoute("a")
	post(t, h.ep, protocol.RegisterClient{}, registry.NoKey, route)
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|1), route)
	nextReply(t, route)
	<-route.Events

	if err := h.ep.LinkLost("wlan0 removed"); err != nil {
		t.Fatalf("LinkLost: %v", err)
	}
	select {
	case env := <-route.Events:
		if changed, ok := env.Body.(protocol.NeighborsChanged); !ok || changed.State != "idle" {
			t.Fatalf("unexpected broadcast %+v", env.Body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no broadcast after link loss")
	}
	if h.ep.Status().State != endpoint.Idle || h.iface.Invalidations() == 0 {
		t.Fatalf("expected idle with invalidated interface, got %+v", h.ep.Status())
	}

	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(2<<32|1), route)
	nextReply(t, route)
	<-route.Events
	h.daemon.Kill()
	if err := h.ep.Probe(); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	waitFor(t, "idle after daemon exit", func() bool { return h.ep.Status().State == endpoint.Idle })
}

func TestCloseAnswersWaitersAndRejectsPosts(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	h := newHarness(t, &testsupport.FakeInterface{Gate: gate})
	route := testsupport.NewRoute("a")
	post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|1), route)
	waitFor(t, "configuring", func() bool { return h.ep.Status().State == endpoint.Configuring })

	h.ep.Close()
	reply := nextReply(t, route)
	failed, ok := reply.Body.(protocol.DiscoverNeighborsFailed)
	if !ok || failed.Reason != protocol.ReasonShutdown {
		t.Fatalf("expected shutdown failure, got %+v", reply.Body)
	}
	if err := h.ep.Post(protocol.NewEnvelope(protocol.RequestNeighbors{}, registry.Key(1<<32|2), route)); !errors.Is(err, endpoint.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPostRejectsMalformedEnvelope(t *testing.T) {
	h := newHarness(t, nil)
	err := h.ep.Post(protocol.Envelope{Kind: protocol.KindDiscoverNeighbors, Body: protocol.RequestNeighbors{}})
	if !errors.Is(err, protocol.ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestCloseAnswersInFlightNeighborQuery(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t, nil)
		route := testsupport.NewRoute("a")
		post(t, h.ep, protocol.DiscoverNeighbors{}, registry.Key(1<<32|1), route)
		nextReply(t, route)

		gate := make(chan struct{})
		h.neighbors.Gate = gate
		key := registry.Key(2<<32 | 1)
		post(t, h.ep, protocol.RequestNeighbors{}, key, route)
		if i%2 == 0 {
			close(gate)
		}
		h.ep.Close()
		if i%2 != 0 {
			close(gate)
		}

		reply := nextReply(t, route)
		if _, ok := reply.Body.(protocol.ResponseNeighbors); !ok || reply.Key != key {
			t.Fatalf("iteration %d: expected neighbor list for key %d, got %+v", i, key, reply)
		}
	}
}
