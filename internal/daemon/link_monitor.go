package daemon

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"proxima/internal/logging"
)

// linkMonitor listens for kernel uevents on the net subsystem and reports
// when the mesh interface disappears.
type linkMonitor struct {
	logger *slog.Logger
	iface  string
	onLost func(cause string)
	onAdd  func()

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newLinkMonitor(iface string, logger *slog.Logger, onLost func(cause string), onAdd func()) *linkMonitor {
	iface = strings.TrimSpace(iface)
	if iface == "" {
		return nil
	}
	return &linkMonitor{
		logger: logging.NewComponentLogger(logger, "link-monitor"),
		iface:  iface,
		onLost: onLost,
		onAdd:  onAdd,
	}
}

// Start connects to the uevent socket. A connect failure is logged and
// leaves the monitor stopped; the liveness probe still catches a dead
// routing daemon.
func (m *linkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to uevent socket", "link_monitor_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run the daemon with CAP_NET_ADMIN or disable interface.monitor"),
			logging.String(logging.FieldImpact, "interface removal will only be noticed by the liveness probe"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	go m.loop(ctx, conn, m.quit)

	m.logger.Info("link monitor started",
		logging.String(logging.FieldEventType, "link_monitor_started"),
		logging.String("interface", m.iface),
	)
	return nil
}

func (m *linkMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
	m.logger.Info("link monitor stopped", logging.String(logging.FieldEventType, "link_monitor_stopped"))
}

func (m *linkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *linkMonitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.matcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case ev := <-queue:
			m.handleEvent(ev)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "uevent monitor error", "link_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "interface events may be missed"),
			)
		}
	}
}

// matcher accepts add and remove events for the configured interface.
func (m *linkMonitor) matcher() netlink.Matcher {
	action := "^(add|remove)$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^net$",
			"INTERFACE": "^" + regexp.QuoteMeta(m.iface) + "$",
		},
	})
	return rules
}

func (m *linkMonitor) handleEvent(ev netlink.UEvent) {
	if name := ev.Env["INTERFACE"]; name != m.iface {
		m.logger.Debug("ignoring uevent for other interface",
			logging.String("interface", name),
			logging.String("action", string(ev.Action)),
		)
		return
	}

	switch ev.Action {
	case netlink.REMOVE:
		m.logger.Info("mesh interface removed",
			logging.String(logging.FieldEventType, "link_removed"),
			logging.String("interface", m.iface),
		)
		if m.onLost != nil {
			m.onLost("interface " + m.iface + " removed")
		}
	case netlink.ADD:
		m.logger.Info("mesh interface added",
			logging.String(logging.FieldEventType, "link_added"),
			logging.String("interface", m.iface),
		)
		if m.onAdd != nil {
			m.onAdd()
		}
	default:
		m.logger.Debug("ignoring uevent", logging.String("action", string(ev.Action)))
	}
}
