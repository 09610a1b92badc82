package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"proxima/internal/logging"
	"proxima/internal/protocol"
	"proxima/internal/registry"
)

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("endpoint closed")

const (
	defaultInboxSize   = 128
	defaultWorkTimeout = 2 * time.Minute
)

// Discover outcomes reported to the Observer.
const (
	OutcomeSucceeded      = "succeeded"
	OutcomeAlreadyRunning = "already_running"
	OutcomeJoined         = "joined"
	OutcomeInterface      = "interface_failed"
	OutcomeDaemon         = "daemon_failed"
	OutcomeCanceled       = "canceled"
)

// Options wires an Endpoint. Interface, Daemon and Neighbors are required.
type Options struct {
	Interface   InterfaceConfigurator
	Daemon      DaemonController
	Neighbors   NeighborSource
	Recorder    Recorder
	Observer    Observer
	Logger      *slog.Logger
	WorkTimeout time.Duration
	InboxSize   int
	Clock       func() time.Time
}

// Endpoint serves every connected client.
type Endpoint struct {
	iface    InterfaceConfigurator
	daemon   DaemonController
	source   NeighborSource
	recorder Recorder
	observer Observer
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time

	st state

	inbox    chan event
	ctx      context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	loopDone chan struct{}
	workers  sync.WaitGroup
}

// event is anything the inbox handles.
type event interface{ isEvent() }

type inboundEvent struct{ env protocol.Envelope }

type discoverDone struct {
	err    error
	reason protocol.Reason
}

type neighborsDone struct {
	req       protocol.Envelope
	neighbors []protocol.Neighbor
	err       error
}

type linkLost struct{ cause string }

type probe struct{}

func (inboundEvent) isEvent()  {}
func (discoverDone) isEvent()  {}
func (neighborsDone) isEvent() {}
func (linkLost) isEvent()      {}
func (probe) isEvent()         {}

// New starts an endpoint in the Idle state. Close releases it.
func New(ctx context.Context, opts Options) (*Endpoint, error) {
	if opts.Interface == nil || opts.Daemon == nil || opts.Neighbors == nil {
		return nil, errors.New("endpoint requires interface configurator, daemon controller and neighbor source")
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.WorkTimeout <= 0 {
		opts.WorkTimeout = defaultWorkTimeout
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e := &Endpoint{
		iface:    opts.Interface,
		daemon:   opts.Daemon,
		source:   opts.Neighbors,
		recorder: opts.Recorder,
		observer: opts.Observer,
		logger:   logging.NewComponentLogger(opts.Logger, "endpoint"),
		timeout:  opts.WorkTimeout,
		now:      opts.Clock,
		inbox:    make(chan event, opts.InboxSize),
		ctx:      loopCtx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	e.st.since = e.now()
	e.observer.StateChanged(Idle)
	go e.run()
	return e, nil
}

// Post queues an envelope for the inbox. It is the only entry point the
// transport uses and reports ErrClosed once the endpoint has stopped.
func (e *Endpoint) Post(env protocol.Envelope) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := env.Validate(); err != nil {
		return err
	}
	return e.enqueue(inboundEvent{env: env})
}

// LinkLost reports that the mesh interface went away.
func (e *Endpoint) LinkLost(cause string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.enqueue(linkLost{cause: cause})
}

// Probe asks the endpoint to verify the routing daemon is still alive.
func (e *Endpoint) Probe() error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.enqueue(probe{})
}

func (e *Endpoint) enqueue(ev event) error {
	if e.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case e.inbox <- ev:
		return nil
	case <-e.ctx.Done():
		return ErrClosed
	}
}

// Status returns a snapshot of the lifecycle state.
func (e *Endpoint) Status() Status {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return e.st.snapshot()
}

// Close stops the inbox, answers queued requests with a shutdown failure and
// waits for workers. It does not stop the routing daemon.
func (e *Endpoint) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		<-e.loopDone
		return
	}
	e.cancel()
	<-e.loopDone
	e.workers.Wait()
	e.drain()
}

func (e *Endpoint) run() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.ctx.Done():
			e.shutdown()
			return
		case ev := <-e.inbox:
			e.handle(ev)
		}
	}
}

func (e *Endpoint) handle(ev event) {
	switch ev := ev.(type) {
	case inboundEvent:
		e.dispatch(ev.env)
	case discoverDone:
		e.finishDiscover(ev)
	case neighborsDone:
		e.finishNeighbors(ev)
	case linkLost:
		e.dropToIdle("link_lost", ev.cause)
	case probe:
		e.checkDaemon()
	}
}

func (e *Endpoint) dispatch(env protocol.Envelope) {
	e.observer.EnvelopeHandled(env.Kind)
	switch env.Body.(type) {
	case protocol.RegisterClient:
		e.OnConnect(env.Route)
	case protocol.UnregisterClient, protocol.ChannelDisconnected:
		e.OnDisconnect(env.Route)
	case protocol.DiscoverNeighbors:
		e.DiscoverNeighbors(env)
	case protocol.RequestNeighbors:
		e.RequestNeighbors(env)
	case protocol.DiscoverNeighborsSucceeded, protocol.DiscoverNeighborsFailed,
		protocol.ResponseNeighbors, protocol.NeighborsChanged:
		e.logger.Debug("ignoring reply kind sent to endpoint",
			logging.String(logging.FieldKind, env.Kind.String()),
			logging.String(logging.FieldClientID, env.RouteID()),
		)
	default:
		logging.WarnWithContext(e.logger, "unknown envelope dropped", "endpoint_unknown_message",
			logging.String(logging.FieldKind, env.Kind.String()),
			logging.Error(fmt.Errorf("%w: %T", protocol.ErrUnknownMessage, env.Body)),
			logging.String(logging.FieldImpact, "message ignored"),
		)
	}
}

// OnConnect adds route to the broadcast list. Adding a route twice is a no-op.
func (e *Endpoint) OnConnect(route protocol.Route) {
	if route == nil {
		return
	}
	e.st.mu.Lock()
	added := e.st.addRoute(route)
	clients := len(e.st.routes)
	e.st.mu.Unlock()
	if added {
		e.observer.ClientsChanged(clients)
		e.logger.Info("client registered",
			logging.String(logging.FieldClientID, route.ID()),
			logging.Int("clients", clients),
		)
	}
}

// OnDisconnect removes route from the broadcast list. Unknown routes are ignored.
func (e *Endpoint) OnDisconnect(route protocol.Route) {
	if route == nil {
		return
	}
	e.removeRoute(route.ID(), "client unregistered")
}

func (e *Endpoint) removeRoute(id, msg string) {
	e.st.mu.Lock()
	removed := e.st.removeRoute(id)
	clients := len(e.st.routes)
	e.st.mu.Unlock()
	if removed {
		e.observer.ClientsChanged(clients)
		e.logger.Info(msg,
			logging.String(logging.FieldClientID, id),
			logging.Int("clients", clients),
		)
	}
}

// DiscoverNeighbors starts discovery, joins an attempt already in flight, or
// confirms discovery that is already running.
func (e *Endpoint) DiscoverNeighbors(req protocol.Envelope) {
	e.st.mu.Lock()
	switch e.st.phase {
	case Running:
		e.st.mu.Unlock()
		e.observer.DiscoverFinished(OutcomeAlreadyRunning)
		e.Reply(req, protocol.DiscoverNeighborsSucceeded{})
		return
	case Configuring:
		e.st.waiters = append(e.st.waiters, req)
		e.st.mu.Unlock()
		e.observer.DiscoverFinished(OutcomeJoined)
		e.logger.Debug("discover joined attempt in flight",
			logging.String(logging.FieldClientID, req.RouteID()),
			logging.Uint64(logging.FieldListenerKey, uint64(req.Key)),
		)
		return
	}
	e.st.setPhase(Configuring, e.now())
	e.st.waiters = append(e.st.waiters[:0], req)
	e.st.attempts++
	attempt := e.st.attempts
	e.st.mu.Unlock()

	e.observer.StateChanged(Configuring)
	e.logger.Info("discovery starting",
		logging.String(logging.FieldState, Configuring.String()),
		logging.Int("attempt", attempt),
		logging.String(logging.FieldClientID, req.RouteID()),
	)
	e.workers.Add(1)
	go e.configure()
}

func (e *Endpoint) configure() {
	defer e.workers.Done()
	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	var done discoverDone
	if !e.iface.IsConfigured() {
		if err := e.iface.Configure(ctx); err != nil {
			done.err = fmt.Errorf("configure interface: %w: %w", protocol.ErrConfiguration, err)
			done.reason = protocol.ReasonInterface
		}
	}
	if done.err == nil && !e.daemon.IsRunning() {
		if err := e.daemon.Start(ctx); err != nil {
			done.err = fmt.Errorf("start routing daemon: %w: %w", protocol.ErrConfiguration, err)
			done.reason = protocol.ReasonDaemon
		}
	}
	// Dropped when the endpoint is closing; shutdown answers the waiters.
	_ = e.enqueue(done)
}

func (e *Endpoint) finishDiscover(done discoverDone) {
	e.st.mu.Lock()
	if e.st.phase != Configuring {
		e.st.mu.Unlock()
		e.logger.Debug("stale discover completion ignored")
		return
	}
	waiters := e.st.waiters
	e.st.waiters = nil
	next := Running
	if done.err != nil {
		next = Idle
		e.st.lastError = done.err.Error()
	} else {
		e.st.lastError = ""
	}
	e.st.setPhase(next, e.now())
	e.st.mu.Unlock()

	e.observer.StateChanged(next)
	if done.err != nil {
		outcome := OutcomeDaemon
		if done.reason == protocol.ReasonInterface {
			outcome = OutcomeInterface
		}
		e.observer.DiscoverFinished(outcome)
		logging.WarnWithContext(e.logger, "discovery failed", "discover_failed",
			logging.Error(done.err),
			logging.String("reason", done.reason.String()),
			logging.Int("waiters", len(waiters)),
			logging.String(logging.FieldState, next.String()),
			logging.String(logging.FieldErrorHint, "check interface commands and routing daemon settings"),
			logging.String(logging.FieldImpact, "neighbor discovery is not running"),
		)
		for _, w := range waiters {
			e.Reply(w, protocol.DiscoverNeighborsFailed{Reason: done.reason})
		}
		return
	}

	e.observer.DiscoverFinished(OutcomeSucceeded)
	e.logger.Info("discovery running",
		logging.String(logging.FieldState, next.String()),
		logging.Int("waiters", len(waiters)),
	)
	for _, w := range waiters {
		e.Reply(w, protocol.DiscoverNeighborsSucceeded{})
	}
	e.broadcast(protocol.NeighborsChanged{State: next.String()})
}

// RequestNeighbors answers with the current neighbor set. Outside Running it
// answers with an empty list without consulting the source.
func (e *Endpoint) RequestNeighbors(req protocol.Envelope) {
	e.st.mu.Lock()
	phase := e.st.phase
	e.st.mu.Unlock()
	if phase != Running {
		e.Reply(req, protocol.ResponseNeighbors{})
		return
	}
	e.workers.Add(1)
	go e.queryNeighbors(req)
}

func (e *Endpoint) queryNeighbors(req protocol.Envelope) {
	defer e.workers.Done()
	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	neighbors, err := e.source.CurrentNeighbors(ctx)
	if err == nil && e.recorder != nil && len(neighbors) > 0 {
		if rerr := e.recorder.Record(ctx, neighbors, e.now()); rerr != nil {
			e.logger.Debug("record neighbors", logging.Error(rerr))
		}
	}
	if qerr := e.enqueue(neighborsDone{req: req, neighbors: neighbors, err: err}); qerr != nil {
		// Closing: answer directly so the caller is not left waiting.
		e.Reply(req, protocol.ResponseNeighbors{})
	}
}

func (e *Endpoint) finishNeighbors(done neighborsDone) {
	if done.err != nil {
		logging.WarnWithContext(e.logger, "neighbor query failed", "neighbors_query_failed",
			logging.Error(done.err),
			logging.String(logging.FieldClientID, done.req.RouteID()),
			logging.String(logging.FieldImpact, "client receives an empty neighbor list"),
		)
		e.Reply(done.req, protocol.ResponseNeighbors{})
		return
	}
	e.Reply(done.req, protocol.ResponseNeighbors{Neighbors: done.neighbors})
}

// Reply answers req on its route with the same listener key. Requests without
// a route are ignored.
func (e *Endpoint) Reply(req protocol.Envelope, body protocol.Message) {
	if req.Route == nil {
		e.logger.Debug("request without route, reply dropped",
			logging.String(logging.FieldKind, body.Kind().String()),
		)
		return
	}
	if !req.Kind.Correlated() || req.Key == registry.NoKey {
		e.logger.Debug("reply to uncorrelated request",
			logging.String(logging.FieldKind, req.Kind.String()),
			logging.String(logging.FieldClientID, req.Route.ID()),
		)
	}
	if err := req.Route.Send(protocol.ReplyTo(req, body)); err != nil {
		e.logger.Debug("reply failed, dropping route",
			logging.String(logging.FieldClientID, req.Route.ID()),
			logging.String(logging.FieldKind, body.Kind().String()),
			logging.Error(err),
		)
		e.removeRoute(req.Route.ID(), "client route dropped")
	}
}

// broadcast notifies every registered route; routes that fail are removed.
func (e *Endpoint) broadcast(body protocol.Message) {
	e.st.mu.Lock()
	routes := append([]protocol.Route(nil), e.st.routes...)
	e.st.mu.Unlock()

	env := protocol.NewEnvelope(body, registry.NoKey, nil)
	for _, r := range routes {
		if err := r.Notify(env); err != nil {
			e.logger.Debug("notify failed, dropping route",
				logging.String(logging.FieldClientID, r.ID()),
				logging.Error(err),
			)
			e.removeRoute(r.ID(), "client route dropped")
		}
	}
}

func (e *Endpoint) checkDaemon() {
	e.st.mu.Lock()
	phase := e.st.phase
	e.st.mu.Unlock()
	if phase != Running || e.daemon.IsRunning() {
		return
	}
	e.dropToIdle("daemon_exited", "routing daemon is no longer running")
}

// dropToIdle leaves Running after the interface or daemon disappeared.
func (e *Endpoint) dropToIdle(eventType, cause string) {
	if inv, ok := e.iface.(invalidator); ok {
		inv.Invalidate()
	}
	e.st.mu.Lock()
	if e.st.phase != Running {
		e.st.mu.Unlock()
		return
	}
	e.st.setPhase(Idle, e.now())
	e.st.lastError = cause
	e.st.mu.Unlock()

	e.observer.StateChanged(Idle)
	logging.WarnWithContext(e.logger, "discovery stopped", eventType,
		logging.String("cause", cause),
		logging.String(logging.FieldState, Idle.String()),
		logging.String(logging.FieldErrorHint, "run 'proxima discover' to start discovery again"),
		logging.String(logging.FieldImpact, "neighbor lists are empty until discovery restarts"),
	)
	e.broadcast(protocol.NeighborsChanged{State: Idle.String()})
}

func (e *Endpoint) shutdown() {
	e.st.mu.Lock()
	waiters := e.st.waiters
	e.st.waiters = nil
	if e.st.phase == Configuring {
		e.st.setPhase(Idle, e.now())
	}
	e.st.mu.Unlock()

	if len(waiters) > 0 {
		e.observer.DiscoverFinished(OutcomeCanceled)
	}
	for _, w := range waiters {
		e.Reply(w, protocol.DiscoverNeighborsFailed{Reason: protocol.ReasonShutdown})
	}
	e.drain()
	e.logger.Debug("endpoint stopped")
}

// drain answers whatever is left in the inbox once the loop has stopped.
func (e *Endpoint) drain() {
	for {
		select {
		case ev := <-e.inbox:
			switch ev := ev.(type) {
			case inboundEvent:
				switch ev.env.Body.(type) {
				case protocol.DiscoverNeighbors:
					e.Reply(ev.env, protocol.DiscoverNeighborsFailed{Reason: protocol.ReasonShutdown})
				case protocol.RequestNeighbors:
					e.Reply(ev.env, protocol.ResponseNeighbors{})
				}
			case neighborsDone:
				e.Reply(ev.req, protocol.ResponseNeighbors{})
			}
		default:
			return
		}
	}
}
