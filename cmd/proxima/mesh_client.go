package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"proxima/internal/channel"
	"proxima/internal/config"
	"proxima/internal/logging"
	"proxima/internal/manager"
	"proxima/internal/protocol"
)

// meshClient is a connected channel plus synchronous wrappers around the two
// protocol verbs.
type meshClient struct {
	ch   *channel.Channel
	lost chan error
}

func connectMesh(ctx context.Context, cfg *config.Config) (*meshClient, error) {
	ready := make(chan error, 1)
	lost := make(chan error, 1)
	var up atomic.Bool
	listener := channel.ConnectionFuncs{
		Connected: func() {
			up.Store(true)
			ready <- nil
		},
		Disconnected: func(err error) {
			if !up.Load() {
				select {
				case ready <- err:
				default:
				}
				return
			}
			select {
			case lost <- err:
			default:
			}
		},
	}

	ch := manager.Connect(ctx, cfg, listener, logging.NewNop())
	select {
	case err := <-ready:
		if err != nil {
			ch.Disconnect()
			return nil, fmt.Errorf("connect to endpoint socket %s: %w; start the daemon with `proxima start`", cfg.Paths.SocketPath, err)
		}
	case <-ctx.Done():
		ch.Disconnect()
		return nil, ctx.Err()
	}
	return &meshClient{ch: ch, lost: lost}, nil
}

func (m *meshClient) Close() {
	m.ch.Disconnect()
}

// Events carries NeighborsChanged broadcasts.
func (m *meshClient) Events() <-chan protocol.Envelope {
	return m.ch.Events()
}

// Lost fires once if the endpoint drops the connection.
func (m *meshClient) Lost() <-chan error {
	return m.lost
}

func (m *meshClient) discover(ctx context.Context) error {
	result := make(chan error, 1)
	manager.DiscoverNeighbors(m.ch, channel.ActionFuncs{
		Success: func() { result <- nil },
		Failure: func(r protocol.Reason) { result <- fmt.Errorf("discover neighbors: %s", r) },
	})
	select {
	case err := <-result:
		return err
	case err := <-m.lost:
		return fmt.Errorf("discover neighbors: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *meshClient) neighbors(ctx context.Context) ([]protocol.Neighbor, error) {
	type outcome struct {
		neighbors []protocol.Neighbor
		err       error
	}
	result := make(chan outcome, 1)
	manager.RequestNeighbors(m.ch, channel.NeighborFuncs{
		Neighbors: func(n []protocol.Neighbor) { result <- outcome{neighbors: n} },
		Failure:   func(r protocol.Reason) { result <- outcome{err: fmt.Errorf("request neighbors: %s", r)} },
	})
	select {
	case out := <-result:
		return out.neighbors, out.err
	case err := <-m.lost:
		return nil, fmt.Errorf("request neighbors: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
