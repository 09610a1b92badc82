//go:build linux

package neighbors

import (
	"context"
	"fmt"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

func dumpTable(ctx context.Context) ([]entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := netlink.NewHandle(unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("open netlink handle: %w", err)
	}
	defer h.Close()

	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < time.Millisecond {
			return nil, context.DeadlineExceeded
		}
		if err := h.SetSocketTimeout(remaining); err != nil {
			return nil, fmt.Errorf("set receive timeout: %w", err)
		}
	}

	// Index 0 dumps every link; Source filters by interface.
	neighs, err := h.NeighList(0, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("list neighbors: %w", err)
	}
	return toEntries(neighs), nil
}

func toEntries(neighs []netlink.Neigh) []entry {
	entries := make([]entry, 0, len(neighs))
	for _, n := range neighs {
		if n.IP == nil {
			continue
		}
		e := entry{
			ifindex: n.LinkIndex,
			state:   uint16(n.State),
			addr:    n.IP.String(),
		}
		if len(n.HardwareAddr) > 0 {
			e.hwaddr = n.HardwareAddr.String()
		}
		entries = append(entries, e)
	}
	return entries
}
