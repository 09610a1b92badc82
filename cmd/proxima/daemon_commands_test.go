package main

import (
	"encoding/json"
	"strings"
	"testing"

	"proxima/internal/deps"
	"proxima/internal/ipc"
)

func TestStatusShowsRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Idle")
	requireContains(t, out, env.cfg.Paths.SocketPath)
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	status := report.Daemon
	if status == nil || !status.Running || status.State != "idle" || status.SessionID == "" {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(report.Checks) == 0 || len(report.Dependencies) == 0 {
		t.Fatalf("report lacks checks or dependencies: %+v", report)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	_, configPath := newCLIConfig(t)

	out, _, err := runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[ERROR] Not running")
}

func TestStopWithoutDaemon(t *testing.T) {
	_, configPath := newCLIConfig(t)

	out, _, err := runCLI(t, []string{"stop"}, configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestStatusLinesRoutingAndMetrics(t *testing.T) {
	lines := statusLines(&ipc.StatusResponse{
		Running:     true,
		PID:         42,
		State:       "running",
		RoutingUp:   true,
		Interface:   "wlan0",
		MetricsAddr: "127.0.0.1:9478",
	}, "/tmp/c.sock", false)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"Running (pid 42)", "[OK] Running", "Routing daemon:", "[OK] yes", "wlan0 (monitored: no)", "http://127.0.0.1:9478/metrics"} {
		requireContains(t, joined, want)
	}
}

func TestDependencyLines(t *testing.T) {
	lines := dependencyLines([]deps.Status{
		{Name: "Routing daemon", Command: "olsrd", Available: true},
		{Name: "iwconfig", Command: "iwconfig", Detail: "binary \"iwconfig\" not found"},
	}, false)
	if len(lines) != 5 {
		t.Fatalf("expected header, rule, two deps and summary, got %q", lines)
	}
	requireContains(t, lines[2], "[OK] Ready (command: olsrd)")
	requireContains(t, lines[3], "[ERROR] binary")
	requireContains(t, lines[4], "iwconfig")
}

func TestDaemonLaunchOptionsForwardFlags(t *testing.T) {
	socket := " /tmp/x.sock "
	configFlag := "/tmp/p.toml"
	ctx := newCommandContext(&socket, &configFlag)
	opts := daemonLaunchOptions(ctx, " debug ")
	if opts.SocketPath != "/tmp/x.sock" || opts.ConfigPath != "/tmp/p.toml" || opts.LogLevel != "debug" {
		t.Fatalf("unexpected launch options %+v", opts)
	}
}
