package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"proxima/internal/config"
	"proxima/internal/daemon"
	"proxima/internal/ipc"
	"proxima/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	neighbors  *testsupport.FakeNeighbors
	configPath string
}

// newCLIConfig writes a test configuration file and points HOME at a temp
// directory so default lookups stay inside the test.
func newCLIConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	home := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("PROXIMA_STATE_DIR", "")

	configPath := filepath.Join(testsupport.BaseDir(cfg), "proxima.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfg, configPath
}

// setupCLITestEnv runs a daemon with fake collaborators behind both sockets.
func setupCLITestEnv(t *testing.T, addresses ...string) *cliTestEnv {
	t.Helper()
	cfg, configPath := newCLIConfig(t)
	neighbors := testsupport.NewFakeNeighbors(addresses...)

	d, err := daemon.New(context.Background(), cfg, nil,
		daemon.WithInterface(&testsupport.FakeInterface{}),
		daemon.WithRouting(&testsupport.FakeDaemon{}),
		daemon.WithNeighborSource(neighbors),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.Paths.ControlSocketPath, d, nil, nil)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	if err := d.Start(ctx); err != nil {
		cancel()
		srv.Close()
		t.Fatalf("daemon start: %v", err)
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		neighbors:  neighbors,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
