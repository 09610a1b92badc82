//go:build linux

package neighbors

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/vishvananda/netlink"
)

func TestToEntriesKeepsKernelOrder(t *testing.T) {
	hw, _ := net.ParseMAC("02:00:00:00:00:03")
	entries := toEntries([]netlink.Neigh{
		{LinkIndex: 4, State: netlink.NUD_REACHABLE, IP: net.IPv4(10, 0, 0, 3), HardwareAddr: hw},
		{LinkIndex: 4, State: netlink.NUD_STALE, IP: net.ParseIP("fe80::1")},
		{LinkIndex: 4, State: netlink.NUD_REACHABLE},
	})
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if e := entries[0]; e.ifindex != 4 || e.addr != "10.0.0.3" || e.hwaddr != "02:00:00:00:00:03" || e.state != nudReachable {
		t.Fatalf("first entry %+v", e)
	}
	if e := entries[1]; e.addr != "fe80::1" || e.hwaddr != "" || e.state != nudStale {
		t.Fatalf("second entry %+v", e)
	}
}

func TestNUDConstantsMatchKernel(t *testing.T) {
	pairs := []struct {
		ours   uint16
		kernel int
	}{
		{nudIncomplete, netlink.NUD_INCOMPLETE},
		{nudReachable, netlink.NUD_REACHABLE},
		{nudStale, netlink.NUD_STALE},
		{nudDelay, netlink.NUD_DELAY},
		{nudProbe, netlink.NUD_PROBE},
		{nudFailed, netlink.NUD_FAILED},
		{nudNoARP, netlink.NUD_NOARP},
		{nudPermanent, netlink.NUD_PERMANENT},
	}
	for _, p := range pairs {
		if int(p.ours) != p.kernel {
			t.Fatalf("state %#x does not match kernel %#x", p.ours, p.kernel)
		}
	}
}

func TestDumpTableHonorsExpiredContext(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if _, err := dumpTable(ctx); err == nil {
		t.Fatal("expected error for expired context")
	}
}
