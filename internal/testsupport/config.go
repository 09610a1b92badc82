package testsupport

import (
	"path/filepath"
	"testing"

	"proxima/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory, with
// interface commands disabled and metrics off.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.SocketPath = filepath.Join(base, "p.sock")
	cfgVal.Paths.ControlSocketPath = filepath.Join(base, "c.sock")
	cfgVal.History.Path = filepath.Join(base, "state", "history.db")
	cfgVal.Interface.Commands = nil
	cfgVal.Interface.DownDelayMillis = 0
	cfgVal.Interface.UpDelayMillis = 0
	cfgVal.Interface.Monitor = false
	cfgVal.Routing.StartBackoffMillis = 10
	cfgVal.Routing.StopTimeoutMillis = 200
	cfgVal.Metrics.Enabled = false
	cfgVal.Metrics.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRoutingBinary points the routing daemon at binary with extra arguments.
func WithRoutingBinary(binary string, args ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Routing.Binary = binary
		b.cfg.Routing.ExtraArgs = args
	}
}

// WithInterfaceCommands replaces the interface bring-up steps.
func WithInterfaceCommands(commands ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Interface.Commands = commands
	}
}

// WithHistory toggles the history database.
func WithHistory(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = enabled
	}
}

// BaseDir returns the temp directory backing the config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SocketPath)
}
