package transport

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/libp2p/go-yamux/v2"
)

const (
	tagRPC    byte = 'R'
	tagEvents byte = 'E'

	routeIDLen       = 16
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 10 * time.Second
)

// slogWriter routes yamux's internal log lines into slog.
type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(b []byte) (int, error) {
	msg := strings.TrimSpace(string(b))
	switch {
	case strings.Contains(msg, "frame for missing stream"):
	case strings.Contains(msg, "iscard"):
	case strings.Contains(msg, "[WARN]"):
		w.logger.Warn(msg)
	default:
		w.logger.Debug(msg)
	}
	return len(b), nil
}

func sessionConfig(logger *slog.Logger) *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.AcceptBacklog = 16
	cfg.LogOutput = &slogWriter{logger: logger}
	return cfg
}

func writeTag(conn net.Conn, tag byte, extra []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	buf := append([]byte{tag}, extra...)
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("write stream tag: %w", err)
	}
	return nil
}

func readTag(conn net.Conn, want byte, extra int) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})
	buf := make([]byte, 1+extra)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("read stream tag: %w", err)
	}
	if buf[0] != want {
		return nil, fmt.Errorf("unexpected stream tag %q, want %q", buf[0], want)
	}
	return buf[1:], nil
}
