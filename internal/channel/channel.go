package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"proxima/internal/logging"
	"proxima/internal/protocol"
	"proxima/internal/registry"
)

// ErrNotConnected is returned by Send while the channel has no session.
var ErrNotConnected = fmt.Errorf("channel not connected: %w", protocol.ErrTransport)

// Session is a connected transport as seen by the channel.
type Session interface {
	// ID names the session; it travels as the reply route of every request.
	ID() string
	Write(env protocol.Envelope) error
	// Run hands every inbound envelope to deliver, in arrival order, and
	// returns when the session ends.
	Run(deliver func(protocol.Envelope)) error
	Close() error
}

// Dialer opens a session to the endpoint.
type Dialer func(ctx context.Context) (Session, error)

// Options tune a Channel. Zero values pick defaults.
type Options struct {
	MaxPending     int
	RequestTimeout time.Duration
	DialTimeout    time.Duration
	ReapInterval   time.Duration
	EventBuffer    int
	Logger         *slog.Logger
	Clock          func() time.Time
}

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReapInterval = time.Second
	defaultEventBuffer  = 16
	inboxBuffer         = 64
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// Channel is one client's connection to the endpoint.
type Channel struct {
	dial        Dialer
	listener    ChannelListener
	logger      *slog.Logger
	table       *registry.Table[FailureListener]
	dialTimeout time.Duration
	reapEvery   time.Duration
	events      chan protocol.Envelope

	mu      sync.Mutex
	state   connState
	session Session
}

// New returns a disconnected channel. listener may be nil.
func New(dial Dialer, listener ChannelListener, opts Options) *Channel {
	if listener == nil {
		listener = ConnectionFuncs{}
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = defaultReapInterval
		if opts.RequestTimeout > 0 && opts.RequestTimeout < 2*opts.ReapInterval {
			opts.ReapInterval = opts.RequestTimeout / 2
		}
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	var tableOpts []registry.Option
	if opts.Clock != nil {
		tableOpts = append(tableOpts, registry.WithClock(opts.Clock))
	}
	return &Channel{
		dial:        dial,
		listener:    listener,
		logger:      logging.NewComponentLogger(opts.Logger, "channel"),
		table:       registry.NewTable[FailureListener](opts.MaxPending, opts.RequestTimeout, tableOpts...),
		dialTimeout: opts.DialTimeout,
		reapEvery:   opts.ReapInterval,
		events:      make(chan protocol.Envelope, opts.EventBuffer),
	}
}

// Connect starts dialing and returns immediately. The outcome is reported
// through ChannelListener. Calling Connect while connecting or connected does
// nothing.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state != stateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = stateConnecting
	c.mu.Unlock()

	go c.connect(ctx)
}

func (c *Channel) connect(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	sess, err := c.dial(dialCtx)
	cancel()
	if err != nil {
		c.mu.Lock()
		wanted := c.state == stateConnecting
		c.state = stateDisconnected
		c.mu.Unlock()
		if !wanted {
			return
		}
		logging.WarnWithContext(c.logger, "connect to endpoint failed", "channel_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "start the daemon with 'proxima start'"),
			logging.String(logging.FieldImpact, "requests fail until the channel connects"),
		)
		c.listener.OnDisconnected(fmt.Errorf("connect: %w", err))
		return
	}

	c.mu.Lock()
	if c.state != stateConnecting {
		c.mu.Unlock()
		_ = sess.Close()
		return
	}
	c.session = sess
	c.state = stateConnected
	c.mu.Unlock()

	logger := c.logger.With(logging.String(logging.FieldClientID, sess.ID()))
	if err := sess.Write(protocol.NewEnvelope(protocol.RegisterClient{}, registry.NoKey, protocol.DetachedRoute(sess.ID()))); err != nil {
		logger.Debug("register with endpoint failed", logging.Error(err))
	}

	inbound := make(chan protocol.Envelope, inboxBuffer)
	ended := make(chan error, 1)
	go func() {
		ended <- sess.Run(func(env protocol.Envelope) { inbound <- env })
	}()
	go c.inbox(sess, inbound, ended, logger)

	logger.Info("channel connected")
	c.listener.OnConnected()
}

// inbox serializes everything that touches listeners for one session.
func (c *Channel) inbox(sess Session, inbound <-chan protocol.Envelope, ended <-chan error, logger *slog.Logger) {
	ticker := time.NewTicker(c.reapEvery)
	defer ticker.Stop()
	for {
		select {
		case env := <-inbound:
			c.dispatch(env, logger)
		case <-ticker.C:
			c.reap(logger)
		case err := <-ended:
			// Flush what the session delivered before it ended.
			for flushed := false; !flushed; {
				select {
				case env := <-inbound:
					c.dispatch(env, logger)
				default:
					flushed = true
				}
			}
			c.dispatch(protocol.NewEnvelope(protocol.ChannelDisconnected{Cause: err}, registry.NoKey, protocol.DetachedRoute(sess.ID())), logger)
			return
		}
	}
}

func (c *Channel) dispatch(env protocol.Envelope, logger *slog.Logger) {
	switch body := env.Body.(type) {
	case protocol.DiscoverNeighborsSucceeded:
		l := c.take(env, logger)
		if l == nil {
			return
		}
		if action, ok := l.(ActionListener); ok {
			action.OnSuccess()
			return
		}
		c.mismatch(env, l, logger)
	case protocol.DiscoverNeighborsFailed:
		if l := c.take(env, logger); l != nil {
			l.OnFailure(body.Reason)
		}
	case protocol.ResponseNeighbors:
		l := c.take(env, logger)
		if l == nil {
			return
		}
		if list, ok := l.(NeighborListListener); ok {
			list.OnNeighbors(body.Neighbors)
			return
		}
		c.mismatch(env, l, logger)
	case protocol.NeighborsChanged:
		select {
		case c.events <- env:
		default:
			logger.Debug("event dropped, no reader", logging.String(logging.FieldKind, env.Kind.String()))
		}
	case protocol.ChannelDisconnected:
		c.dropped(env.RouteID(), body.Cause, logger)
	case protocol.RegisterClient, protocol.UnregisterClient, protocol.DiscoverNeighbors, protocol.RequestNeighbors:
		logger.Debug("ignoring request kind on client", logging.String(logging.FieldKind, env.Kind.String()))
	default:
		logging.WarnWithContext(logger, "unknown envelope dropped", "channel_unknown_message",
			logging.String(logging.FieldKind, env.Kind.String()),
			logging.Error(fmt.Errorf("%w: %T", protocol.ErrUnknownMessage, env.Body)),
			logging.String(logging.FieldImpact, "message ignored"),
		)
	}
}

func (c *Channel) take(env protocol.Envelope, logger *slog.Logger) FailureListener {
	l := c.GetListener(env.Key)
	if l == nil {
		logger.Debug("no listener for reply",
			logging.String(logging.FieldKind, env.Kind.String()),
			logging.Uint64(logging.FieldListenerKey, uint64(env.Key)),
		)
	}
	return l
}

// mismatch fails a listener whose capability does not fit the reply it got,
// so it still sees exactly one terminal callback.
func (c *Channel) mismatch(env protocol.Envelope, l FailureListener, logger *slog.Logger) {
	logging.WarnWithContext(logger, "reply does not match listener", "channel_listener_mismatch",
		logging.String(logging.FieldKind, env.Kind.String()),
		logging.String("listener_type", fmt.Sprintf("%T", l)),
		logging.String(logging.FieldImpact, "request reported as internal failure"),
	)
	l.OnFailure(protocol.ReasonInternal)
}

func (c *Channel) reap(logger *slog.Logger) {
	for _, entry := range c.table.Expire() {
		logger.Debug("request timed out", logging.Uint64(logging.FieldListenerKey, uint64(entry.Key)))
		entry.Listener.OnFailure(protocol.ReasonTimeout)
	}
}

// dropped handles the end of a session. Sessions closed by Disconnect end
// quietly; anything else is a remote failure reported to the ChannelListener.
// Pending listeners are released without being invoked.
func (c *Channel) dropped(sessionID string, cause error, logger *slog.Logger) {
	c.mu.Lock()
	if c.session == nil || c.session.ID() != sessionID {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.state = stateDisconnected
	c.mu.Unlock()

	abandoned := len(c.table.Drain())
	err := protocol.ErrRemoteFailure
	if cause != nil {
		err = fmt.Errorf("%w: %w", protocol.ErrRemoteFailure, cause)
	}
	logging.WarnWithContext(logger, "channel lost", "channel_disconnected",
		logging.Error(err),
		logging.Int("abandoned_requests", abandoned),
		logging.String(logging.FieldErrorHint, "check that proximad is running"),
		logging.String(logging.FieldImpact, "pending requests will not be answered"),
	)
	c.listener.OnDisconnected(err)
}

// Disconnect unregisters from the endpoint and closes the session. Pending
// listeners are released without being invoked. Safe to call at any time.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.state == stateDisconnected {
		c.mu.Unlock()
		return
	}
	sess := c.session
	c.session = nil
	c.state = stateDisconnected
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Write(protocol.NewEnvelope(protocol.UnregisterClient{}, registry.NoKey, protocol.DetachedRoute(sess.ID()))); err != nil {
			c.logger.Debug("unregister failed", logging.Error(err))
		}
		if err := sess.Close(); err != nil {
			c.logger.Debug("close session", logging.Error(err))
		}
	}
	c.table.Drain()
}

// PutListener stores l and returns its key. A nil listener yields NoKey and
// no error. A full registry returns registry.ErrFull.
func (c *Channel) PutListener(l FailureListener) (registry.Key, error) {
	if l == nil {
		return registry.NoKey, nil
	}
	key, err := c.table.Put(l)
	if err != nil {
		return registry.NoKey, fmt.Errorf("register listener: %w", err)
	}
	return key, nil
}

// GetListener removes and returns the listener for key, or nil.
func (c *Channel) GetListener(key registry.Key) FailureListener {
	l, ok := c.table.Take(key)
	if !ok {
		return nil
	}
	return l
}

// Send writes a request of the given payload-free kind. When the request
// cannot be written, the listener stored under key is removed and receives
// OnFailure before Send returns.
func (c *Channel) Send(kind protocol.Kind, arg1 int64, key registry.Key) error {
	body, err := protocol.EmptyBody(kind)
	if err != nil || kind.LocalOnly() {
		if err == nil {
			err = fmt.Errorf("%w: %s is never sent", protocol.ErrUnknownMessage, kind)
		}
		c.fail(key, protocol.ReasonInternal)
		return err
	}

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		logging.WarnWithContext(c.logger, "send while disconnected", "channel_not_connected",
			logging.String(logging.FieldKind, kind.String()),
			logging.Uint64(logging.FieldListenerKey, uint64(key)),
			logging.String(logging.FieldErrorHint, "wait for OnConnected before sending"),
			logging.String(logging.FieldImpact, "request failed with not_connected"),
		)
		c.fail(key, protocol.ReasonNotConnected)
		return ErrNotConnected
	}

	env := protocol.Envelope{Kind: kind, Arg1: arg1, Key: key, Body: body, Route: protocol.DetachedRoute(sess.ID())}
	if err := sess.Write(env); err != nil {
		c.logger.Debug("send failed",
			logging.String(logging.FieldKind, kind.String()),
			logging.Error(err),
		)
		c.fail(key, protocol.ReasonNotConnected)
		if errors.Is(err, protocol.ErrTransport) {
			return fmt.Errorf("send %s: %w", kind, err)
		}
		return fmt.Errorf("send %s: %w: %w", kind, protocol.ErrTransport, err)
	}
	return nil
}

func (c *Channel) fail(key registry.Key, reason protocol.Reason) {
	if l := c.GetListener(key); l != nil {
		l.OnFailure(reason)
	}
}

// Events delivers NeighborsChanged broadcasts. Events are dropped when the
// buffer is full.
func (c *Channel) Events() <-chan protocol.Envelope {
	return c.events
}

// Connected reports whether a session is established.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// Pending reports the number of outstanding requests.
func (c *Channel) Pending() int {
	return c.table.Len()
}
