package daemon

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

func TestNewLinkMonitorRequiresInterface(t *testing.T) {
	if m := newLinkMonitor("  ", nil, nil, nil); m != nil {
		t.Fatal("expected nil monitor for blank interface")
	}
	if m := newLinkMonitor("mesh0", nil, nil, nil); m == nil || m.iface != "mesh0" {
		t.Fatalf("unexpected monitor %+v", m)
	}
}

func TestNilLinkMonitorIsSafe(t *testing.T) {
	var m *linkMonitor
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil monitor: %v", err)
	}
	m.Stop()
	if m.Running() {
		t.Fatal("nil monitor reports running")
	}
}

func TestStopUnstartedLinkMonitor(t *testing.T) {
	m := newLinkMonitor("mesh0", nil, nil, nil)
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("unstarted monitor reports running")
	}
}

func TestLinkMonitorMatcher(t *testing.T) {
	m := newLinkMonitor("mesh0", nil, nil, nil)
	matcher := m.matcher()

	cases := []struct {
		name string
		ev   netlink.UEvent
		want bool
	}{
		{"remove", netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "net", "INTERFACE": "mesh0"}}, true},
		{"add", netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "net", "INTERFACE": "mesh0"}}, true},
		{"change", netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{"SUBSYSTEM": "net", "INTERFACE": "mesh0"}}, false},
		{"prefix interface", netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "net", "INTERFACE": "mesh01"}}, false},
		{"block device", netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "block", "INTERFACE": "mesh0"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := matcher.Evaluate(tc.ev); got != tc.want {
				t.Fatalf("Evaluate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLinkMonitorHandleEvent(t *testing.T) {
	var lost []string
	added := 0
	m := newLinkMonitor("mesh0", nil, func(cause string) { lost = append(lost, cause) }, func() { added++ })

	m.handleEvent(netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"INTERFACE": "eth0"}})
	if len(lost) != 0 {
		t.Fatal("event for other interface reported")
	}
	m.handleEvent(netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"INTERFACE": "mesh0"}})
	if len(lost) != 1 || lost[0] != "interface mesh0 removed" {
		t.Fatalf("lost = %v", lost)
	}
	m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"INTERFACE": "mesh0"}})
	if added != 1 {
		t.Fatalf("added = %d", added)
	}
}
