// Package iface brings up the wireless mesh interface by running the
// configured shell steps.
package iface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"proxima/internal/config"
	"proxima/internal/logging"
)

const defaultForwardPath = "/proc/sys/net/ipv4/ip_forward"

// Runner executes one shell step.
type Runner interface {
	Run(ctx context.Context, command string) ([]byte, error)
}

type shellRunner struct{}

func (shellRunner) Run(ctx context.Context, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command) //nolint:gosec
	return cmd.CombinedOutput()
}

// Option configures a Configurator.
type Option func(*Configurator)

// WithRunner replaces the shell runner.
func WithRunner(r Runner) Option {
	return func(c *Configurator) {
		if r != nil {
			c.runner = r
		}
	}
}

// WithForwardPath overrides the ip_forward sysctl file.
func WithForwardPath(path string) Option {
	return func(c *Configurator) {
		if path != "" {
			c.forwardPath = path
		}
	}
}

// Configurator runs the interface steps once and remembers success until
// Invalidate is called.
type Configurator struct {
	settings    config.Interface
	runner      Runner
	forwardPath string
	logger      *slog.Logger

	mu         sync.Mutex
	configured bool
}

// New builds a configurator for the interface section of the config.
func New(settings config.Interface, logger *slog.Logger, opts ...Option) *Configurator {
	c := &Configurator{
		settings:    settings,
		runner:      shellRunner{},
		forwardPath: defaultForwardPath,
		logger:      logging.NewComponentLogger(logger, "iface"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the interface name.
func (c *Configurator) Name() string { return c.settings.Name }

func (c *Configurator) IsConfigured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configured
}

// Invalidate forgets a previous successful configuration.
func (c *Configurator) Invalidate() {
	c.mu.Lock()
	c.configured = false
	c.mu.Unlock()
}

// Configure runs every step in order. It is a no-op once configured.
func (c *Configurator) Configure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configured {
		return nil
	}

	logger := c.logger.With(logging.String("interface", c.settings.Name))
	if err := sleep(ctx, time.Duration(c.settings.DownDelayMillis)*time.Millisecond); err != nil {
		return err
	}
	for i, step := range c.settings.Commands {
		command := c.expand(step)
		logger.Debug("interface step", logging.Int("step", i+1), logging.String("command", command))
		output, err := c.runner.Run(ctx, command)
		if err != nil {
			return fmt.Errorf("step %d %q: %w: %s", i+1, command, err, strings.TrimSpace(string(output)))
		}
	}
	if c.settings.EnableIPForward {
		if err := os.WriteFile(c.forwardPath, []byte("1\n"), 0o644); err != nil {
			return fmt.Errorf("enable ip forwarding: %w", err)
		}
	}
	if err := sleep(ctx, time.Duration(c.settings.UpDelayMillis)*time.Millisecond); err != nil {
		return err
	}
	c.configured = true
	logger.Info("interface configured", logging.Int("steps", len(c.settings.Commands)))
	return nil
}

func (c *Configurator) expand(step string) string {
	return strings.NewReplacer(
		"{iface}", c.settings.Name,
		"{address}", c.settings.Address,
		"{netmask}", c.settings.Netmask,
		"{essid}", c.settings.ESSID,
		"{channel}", strconv.Itoa(c.settings.Channel),
	).Replace(step)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Join(errors.New("interface configuration interrupted"), ctx.Err())
	case <-timer.C:
		return nil
	}
}
