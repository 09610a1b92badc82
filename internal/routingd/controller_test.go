package routingd_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"
	"time"

	"proxima/internal/config"
	"proxima/internal/routingd"
	"proxima/internal/testsupport"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-routingd")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestArgsIncludeConfigInterfaceAndExtras(t *testing.T) {
	cfg := config.Routing{ConfigPath: "/etc/olsrd.conf", DebugLevel: 2, ExtraArgs: []string{"-nofork"}}
	got := routingd.Args(cfg, "wlan0")
	want := []string{"-f", "/etc/olsrd.conf", "-i", "wlan0", "-d", "2", "-nofork"}
	if !slices.Equal(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestArgsKeepDaemonInForeground(t *testing.T) {
	for _, level := range []int{0, 3} {
		got := routingd.Args(config.Routing{DebugLevel: level}, "mesh0")
		want := []string{"-i", "mesh0", "-d", strconv.Itoa(level), "-nofork"}
		if !slices.Equal(got, want) {
			t.Fatalf("debug %d: args = %v, want %v", level, got, want)
		}
	}
}

func TestStartAndStopLongRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRoutingBinary(writeScript(t, "exec sleep 30")))
	var attempts int
	var ok bool
	ctrl := routingd.New(cfg.Routing, "mesh0", nil, routingd.WithStartObserver(func(n int, success bool) {
		attempts, ok = n, success
	}))
	t.Cleanup(func() { _ = ctrl.Stop(context.Background()) })

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !ctrl.IsRunning() || ctrl.PID() == 0 {
		t.Fatal("daemon not running after Start")
	}
	if !ok || attempts < 2 {
		t.Fatalf("observer got attempts=%d ok=%v", attempts, ok)
	}

	if err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ctrl.IsRunning() {
		t.Fatal("daemon still running after Stop")
	}
	if err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStartFailsWhenDaemonExits(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRoutingBinary(writeScript(t, "echo 'bad config' >&2; exit 1")))
	ctrl := routingd.New(cfg.Routing, "mesh0", nil)

	err := ctrl.Start(context.Background())
	if !errors.Is(err, routingd.ErrExited) {
		t.Fatalf("expected ErrExited, got %v", err)
	}
	if ctrl.IsRunning() {
		t.Fatal("exited daemon reported running")
	}
}

func TestStartMissingBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRoutingBinary(filepath.Join(t.TempDir(), "absent")))
	ctrl := routingd.New(cfg.Routing, "mesh0", nil)
	if err := ctrl.Start(context.Background()); err == nil {
		t.Fatal("expected spawn error")
	}
}

func TestStopKillsDaemonIgnoringTerm(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRoutingBinary(writeScript(t, "trap '' TERM\nwhile :; do sleep 1; done")))
	cfg.Routing.StopTimeoutMillis = 50
	ctrl := routingd.New(cfg.Routing, "mesh0", nil)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	if err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ctrl.IsRunning() {
		t.Fatal("daemon survived SIGKILL")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Stop took %s", elapsed)
	}
}

func TestRestartReplacesRunningInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRoutingBinary(writeScript(t, "exec sleep 30")))
	ctrl := routingd.New(cfg.Routing, "mesh0", nil)
	t.Cleanup(func() { _ = ctrl.Stop(context.Background()) })

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := ctrl.PID()
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if second := ctrl.PID(); second == 0 || second == first {
		t.Fatalf("pid %d after restart, first was %d", second, first)
	}
}
