// Package manager is the client facade: it turns the two protocol verbs into
// a listener registration plus a send on a shared channel.
package manager

import (
	"context"
	"errors"
	"log/slog"

	"proxima/internal/channel"
	"proxima/internal/config"
	"proxima/internal/protocol"
	"proxima/internal/registry"
	"proxima/internal/transport"
)

// Initialize builds a channel over dial and starts connecting. Connection
// progress is reported to listener.
func Initialize(ctx context.Context, dial channel.Dialer, listener channel.ChannelListener, opts channel.Options) *channel.Channel {
	ch := channel.New(dial, listener, opts)
	ch.Connect(ctx)
	return ch
}

// Connect is Initialize for the endpoint socket named by cfg.
func Connect(ctx context.Context, cfg *config.Config, listener channel.ChannelListener, logger *slog.Logger) *channel.Channel {
	return Initialize(ctx, transport.Dialer(cfg.Paths.SocketPath, logger), listener, ChannelOptions(cfg, logger))
}

// ChannelOptions derives channel settings from configuration.
func ChannelOptions(cfg *config.Config, logger *slog.Logger) channel.Options {
	return channel.Options{
		MaxPending:     cfg.Channel.MaxPending,
		RequestTimeout: cfg.RequestTimeout(),
		DialTimeout:    cfg.DialTimeout(),
		Logger:         logger,
	}
}

// DiscoverNeighbors asks the endpoint to start discovery. The outcome always
// reaches listener.
func DiscoverNeighbors(ch *channel.Channel, listener channel.ActionListener) {
	send(ch, protocol.KindDiscoverNeighbors, listener)
}

// RequestNeighbors asks for the current neighbor list. The outcome always
// reaches listener.
func RequestNeighbors(ch *channel.Channel, listener channel.NeighborListListener) {
	send(ch, protocol.KindRequestNeighbors, listener)
}

func send(ch *channel.Channel, kind protocol.Kind, listener channel.FailureListener) {
	key, err := ch.PutListener(listener)
	if err != nil {
		if errors.Is(err, registry.ErrFull) {
			listener.OnFailure(protocol.ReasonBusy)
		} else {
			listener.OnFailure(protocol.ReasonInternal)
		}
		return
	}
	// Send logs and reports its own failures to the listener.
	_ = ch.Send(kind, 0, key)
}
