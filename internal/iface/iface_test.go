package iface_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"proxima/internal/config"
	"proxima/internal/iface"
)

type recordingRunner struct {
	commands []string
	failOn   string
}

func (r *recordingRunner) Run(_ context.Context, command string) ([]byte, error) {
	r.commands = append(r.commands, command)
	if r.failOn != "" && strings.Contains(command, r.failOn) {
		return []byte("SIOCSIFFLAGS: No such device"), errors.New("exit status 1")
	}
	return nil, nil
}

func settings() config.Interface {
	return config.Interface{
		Name:            "wlan1",
		Address:         "10.9.0.4",
		Netmask:         "255.255.0.0",
		ESSID:           "meshy",
		Channel:         6,
		Commands:        []string{"ifconfig {iface} {address} netmask {netmask}", "iwconfig {iface} essid {essid} channel {channel}"},
		EnableIPForward: true,
	}
}

func TestConfigureExpandsPlaceholdersOnce(t *testing.T) {
	runner := &recordingRunner{}
	forward := filepath.Join(t.TempDir(), "ip_forward")
	c := iface.New(settings(), nil, iface.WithRunner(runner), iface.WithForwardPath(forward))

	if err := c.Configure(context.Background()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := c.Configure(context.Background()); err != nil {
		t.Fatalf("second Configure: %v", err)
	}
	want := []string{"ifconfig wlan1 10.9.0.4 netmask 255.255.0.0", "iwconfig wlan1 essid meshy channel 6"}
	if len(runner.commands) != len(want) {
		t.Fatalf("ran %v, want %v", runner.commands, want)
	}
	for i := range want {
		if runner.commands[i] != want[i] {
			t.Fatalf("step %d = %q, want %q", i, runner.commands[i], want[i])
		}
	}
	data, err := os.ReadFile(forward)
	if err != nil || strings.TrimSpace(string(data)) != "1" {
		t.Fatalf("ip_forward not enabled: %q %v", data, err)
	}
	if !c.IsConfigured() {
		t.Fatal("expected configured flag")
	}

	c.Invalidate()
	if c.IsConfigured() {
		t.Fatal("Invalidate did not clear the flag")
	}
	if err := c.Configure(context.Background()); err != nil {
		t.Fatalf("Configure after invalidate: %v", err)
	}
	if len(runner.commands) != 2*len(want) {
		t.Fatalf("expected steps to rerun, ran %d", len(runner.commands))
	}
}

func TestConfigureStopsAtFailingStep(t *testing.T) {
	runner := &recordingRunner{failOn: "ifconfig"}
	s := settings()
	s.EnableIPForward = false
	c := iface.New(s, nil, iface.WithRunner(runner))

	err := c.Configure(context.Background())
	if err == nil || !strings.Contains(err.Error(), "No such device") {
		t.Fatalf("expected step failure with output, got %v", err)
	}
	if len(runner.commands) != 1 || c.IsConfigured() {
		t.Fatalf("ran %v, configured=%v", runner.commands, c.IsConfigured())
	}
}

func TestConfigureHonorsCancellation(t *testing.T) {
	s := settings()
	s.DownDelayMillis = 60_000
	c := iface.New(s, nil, iface.WithRunner(&recordingRunner{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Configure(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestShellRunnerExecutesSteps(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "up")
	s := settings()
	s.Commands = []string{"touch " + marker}
	s.EnableIPForward = false
	if err := iface.New(s, nil).Configure(context.Background()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("step did not run: %v", err)
	}
}
