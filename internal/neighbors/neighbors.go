// Package neighbors reads the kernel neighbor table for the mesh interface.
package neighbors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"proxima/internal/logging"
	"proxima/internal/protocol"
)

// ErrUnsupported is returned on platforms without a netlink neighbor table.
var ErrUnsupported = errors.New("neighbor table not supported on this platform")

// Source lists neighbors seen on one interface.
type Source struct {
	ifaceName string
	logger    *slog.Logger
	lookup    func(name string) (*net.Interface, error)
	dump      func(ctx context.Context) ([]entry, error)
}

// entry is one row of the kernel table before interface filtering.
type entry struct {
	ifindex int
	state   uint16
	addr    string
	hwaddr  string
}

// New returns a source for ifaceName.
func New(ifaceName string, logger *slog.Logger) *Source {
	return &Source{
		ifaceName: ifaceName,
		logger:    logging.NewComponentLogger(logger, "neighbors"),
		lookup:    net.InterfaceByName,
		dump:      dumpTable,
	}
}

// CurrentNeighbors returns the reachable neighbors on the interface in kernel
// order. Entries in failed or incomplete state are skipped.
func (s *Source) CurrentNeighbors(ctx context.Context) ([]protocol.Neighbor, error) {
	iface, err := s.lookup(s.ifaceName)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", s.ifaceName, err)
	}
	entries, err := s.dump(ctx)
	if err != nil {
		return nil, fmt.Errorf("dump neighbor table: %w", err)
	}

	out := make([]protocol.Neighbor, 0, len(entries))
	for _, e := range entries {
		if e.ifindex != iface.Index || !usable(e.state) {
			continue
		}
		out = append(out, protocol.Neighbor{
			Address:      e.addr,
			HardwareAddr: e.hwaddr,
			State:        stateName(e.state),
			Interface:    iface.Name,
		})
	}
	s.logger.Debug("neighbor table read",
		logging.String("interface", iface.Name),
		logging.Int("entries", len(entries)),
		logging.Int("neighbors", len(out)),
	)
	return out, nil
}

// NUD states from linux/neighbour.h.
const (
	nudIncomplete uint16 = 0x01
	nudReachable  uint16 = 0x02
	nudStale      uint16 = 0x04
	nudDelay      uint16 = 0x08
	nudProbe      uint16 = 0x10
	nudFailed     uint16 = 0x20
	nudNoARP      uint16 = 0x40
	nudPermanent  uint16 = 0x80
)

func usable(state uint16) bool {
	return state&(nudFailed|nudIncomplete) == 0
}

func stateName(state uint16) string {
	switch {
	case state&nudPermanent != 0:
		return "permanent"
	case state&nudNoARP != 0:
		return "noarp"
	case state&nudReachable != 0:
		return "reachable"
	case state&nudStale != 0:
		return "stale"
	case state&nudDelay != 0:
		return "delay"
	case state&nudProbe != 0:
		return "probe"
	case state&nudFailed != 0:
		return "failed"
	case state&nudIncomplete != 0:
		return "incomplete"
	default:
		return "none"
	}
}
