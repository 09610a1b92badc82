package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-yamux/v2"

	"proxima/internal/logging"
	"proxima/internal/protocol"
	"proxima/internal/registry"
)

// Poster receives every envelope a server reads, with its route bound to the
// connection it arrived on.
type Poster interface {
	Post(env protocol.Envelope) error
}

// Server accepts client sessions on a unix socket.
type Server struct {
	path     string
	poster   Poster
	logger   *slog.Logger
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[*yamux.Session]struct{}
}

// NewServer listens on path, replacing any stale socket file.
func NewServer(ctx context.Context, path string, poster Poster, logger *slog.Logger) (*Server, error) {
	if poster == nil {
		return nil, errors.New("transport server requires a poster")
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:     path,
		poster:   poster,
		logger:   logging.NewComponentLogger(logger, "transport"),
		listener: listener,
		ctx:      serverCtx,
		cancel:   cancel,
		sessions: make(map[*yamux.Session]struct{}),
	}, nil
}

// Serve accepts connections until Close.
func (s *Server) Serve() {
	s.logger.Debug("transport listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				logging.WarnWithContext(s.logger, "accept failed", "transport_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.ServeConn(c)
			}(conn)
		}
	}()
}

// ServeConn runs one client session on conn and returns when it ends.
func (s *Server) ServeConn(conn net.Conn) {
	sess, err := yamux.Server(conn, sessionConfig(s.logger))
	if err != nil {
		_ = conn.Close()
		s.logger.Debug("start session failed", logging.Error(err))
		return
	}
	defer conn.Close()
	defer sess.Close()
	if !s.track(sess) {
		return
	}
	defer s.untrack(sess)

	r, err := s.handshake(sess)
	if err != nil {
		s.logger.Debug("session handshake failed", logging.Error(err))
		return
	}
	logger := s.logger.With(logging.String(logging.FieldClientID, r.id))
	logger.Debug("client session opened")

	cause := s.readLoop(r, logger)
	r.markClosed()
	disconnected := protocol.NewEnvelope(protocol.ChannelDisconnected{Cause: cause}, registry.NoKey, r)
	if err := s.poster.Post(disconnected); err != nil {
		logger.Debug("post disconnect", logging.Error(err))
	}
	logger.Debug("client session closed", logging.Error(cause))
}

func (s *Server) handshake(sess *yamux.Session) (*route, error) {
	timer := time.AfterFunc(handshakeTimeout, func() { _ = sess.Close() })
	defer timer.Stop()

	rpc, err := sess.Accept()
	if err != nil {
		return nil, fmt.Errorf("accept rpc stream: %w", err)
	}
	raw, err := readTag(rpc, tagRPC, routeIDLen)
	if err != nil {
		return nil, err
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parse route id: %w", err)
	}

	ctx, cancel := context.WithTimeout(s.ctx, handshakeTimeout)
	defer cancel()
	events, err := sess.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open events stream: %w", err)
	}
	if err := writeTag(events, tagEvents, nil); err != nil {
		return nil, err
	}
	return newRoute(id.String(), rpc, events), nil
}

func (s *Server) readLoop(r *route, logger *slog.Logger) error {
	dec := protocol.NewDecoder(r.rpc)
	for {
		env, err := dec.Decode()
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownMessage) {
				logger.Debug("dropping unknown frame", logging.Error(err))
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if env.Route != nil && env.Route.ID() != r.id {
			logger.Debug("frame names a foreign route", logging.String("route", env.Route.ID()))
		}
		env.Route = r
		if err := s.poster.Post(env); err != nil {
			logger.Debug("post envelope",
				logging.String(logging.FieldKind, env.Kind.String()),
				logging.Error(err),
			)
		}
	}
}

func (s *Server) track(sess *yamux.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) untrack(sess *yamux.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// Close stops accepting, ends every session and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for sess := range s.sessions {
		_ = sess.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "transport_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

// route is the server side of one client session.
type route struct {
	id     string
	rpc    net.Conn
	events net.Conn
	rpcEnc *protocol.Encoder
	evEnc  *protocol.Encoder

	mu     sync.Mutex
	closed bool
}

func newRoute(id string, rpc, events net.Conn) *route {
	return &route{
		id:     id,
		rpc:    rpc,
		events: events,
		rpcEnc: protocol.NewEncoder(rpc),
		evEnc:  protocol.NewEncoder(events),
	}
}

func (r *route) ID() string { return r.id }

func (r *route) Send(env protocol.Envelope) error {
	return r.write(r.rpc, r.rpcEnc, env)
}

func (r *route) Notify(env protocol.Envelope) error {
	return r.write(r.events, r.evEnc, env)
}

func (r *route) write(conn net.Conn, enc *protocol.Encoder, env protocol.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("route %s closed: %w", r.id, protocol.ErrTransport)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("route %s: %w", r.id, err)
	}
	return nil
}

func (r *route) markClosed() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
