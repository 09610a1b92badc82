package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-yamux/v2"

	"proxima/internal/channel"
	"proxima/internal/logging"
	"proxima/internal/protocol"
)

// ClientSession is the client end of a session. It implements
// channel.Session.
type ClientSession struct {
	id     string
	conn   net.Conn
	sess   *yamux.Session
	rpc    net.Conn
	events net.Conn
	enc    *protocol.Encoder
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ channel.Session = (*ClientSession)(nil)

// Dial connects to the endpoint socket at path.
func Dial(ctx context.Context, path string, logger *slog.Logger) (*ClientSession, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return DialConn(ctx, conn, logger)
}

// DialConn runs the client handshake over an established connection. The
// session owns conn afterwards.
func DialConn(ctx context.Context, conn net.Conn, logger *slog.Logger) (*ClientSession, error) {
	logger = logging.NewComponentLogger(logger, "transport")
	sess, err := yamux.Client(conn, sessionConfig(logger))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()

	fail := func(err error) (*ClientSession, error) {
		_ = sess.Close()
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}

	id := uuid.New()
	rpc, err := sess.Open(ctx)
	if err != nil {
		return fail(fmt.Errorf("open rpc stream: %w", err))
	}
	if err := writeTag(rpc, tagRPC, id[:]); err != nil {
		return fail(err)
	}
	events, err := sess.Accept()
	if err != nil {
		return fail(fmt.Errorf("accept events stream: %w", err))
	}
	if _, err := readTag(events, tagEvents, 0); err != nil {
		return fail(err)
	}
	return &ClientSession{
		id:     id.String(),
		conn:   conn,
		sess:   sess,
		rpc:    rpc,
		events: events,
		enc:    protocol.NewEncoder(rpc),
		logger: logger.With(logging.String(logging.FieldClientID, id.String())),
	}, nil
}

// Dialer returns a channel.Dialer for the socket at path.
func Dialer(path string, logger *slog.Logger) channel.Dialer {
	return func(ctx context.Context) (channel.Session, error) {
		sess, err := Dial(ctx, path, logger)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

func (c *ClientSession) ID() string { return c.id }

func (c *ClientSession) Write(env protocol.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.sess.IsClosed() {
		return fmt.Errorf("session closed: %w", protocol.ErrTransport)
	}
	_ = c.rpc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.enc.Encode(env)
}

// Run reads both streams until the session ends. Replies and broadcasts may
// interleave in any order.
func (c *ClientSession) Run(deliver func(protocol.Envelope)) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.read(c.events, deliver); err != nil {
			c.logger.Debug("events stream ended", logging.Error(err))
		}
	}()
	err := c.read(c.rpc, deliver)
	_ = c.sess.Close()
	wg.Wait()
	if err == nil {
		err = io.EOF
	}
	return err
}

func (c *ClientSession) read(conn net.Conn, deliver func(protocol.Envelope)) error {
	dec := protocol.NewDecoder(conn)
	for {
		env, err := dec.Decode()
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownMessage) {
				c.logger.Debug("dropping unknown frame", logging.Error(err))
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		deliver(env)
	}
}

// Close ends the session. It is safe to call more than once.
func (c *ClientSession) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.sess.Close()
		_ = c.conn.Close()
	})
	return err
}
