// Package routingd supervises the mesh routing daemon process.
package routingd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"proxima/internal/config"
	"proxima/internal/logging"
	"proxima/internal/retry"
)

// ErrExited reports a daemon that died while being started.
var ErrExited = errors.New("routing daemon exited")

var errSettling = errors.New("routing daemon still settling")

// Option configures a Controller.
type Option func(*Controller)

// WithStartObserver is called after every Start with the attempts used.
func WithStartObserver(fn func(attempts int, ok bool)) Option {
	return func(c *Controller) {
		c.observe = fn
	}
}

// Controller starts, probes and stops one routing daemon process.
type Controller struct {
	binary      string
	args        []string
	policy      retry.Policy
	settle      time.Duration
	stopTimeout time.Duration
	logger      *slog.Logger
	observe     func(attempts int, ok bool)

	mu   sync.Mutex
	proc *process
}

type process struct {
	cmd     *exec.Cmd
	started time.Time
	exited  chan struct{}
	err     error
}

func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
	}
	return unix.Kill(p.cmd.Process.Pid, 0) == nil
}

// New builds a controller for the routing section of cfg, bound to the mesh
// interface name.
func New(cfg config.Routing, ifaceName string, logger *slog.Logger, opts ...Option) *Controller {
	backoff := time.Duration(cfg.StartBackoffMillis) * time.Millisecond
	c := &Controller{
		binary: cfg.Binary,
		args:   Args(cfg, ifaceName),
		policy: retry.Policy{
			Attempts: cfg.StartAttempts,
			Initial:  backoff,
			Max:      4 * backoff,
		},
		settle:      backoff,
		stopTimeout: time.Duration(cfg.StopTimeoutMillis) * time.Millisecond,
		logger:      logging.NewComponentLogger(logger, "routingd"),
	}
	if cfg.StartAttempts <= 1 {
		c.settle = 0
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// noForkFlag keeps the routing daemon in the foreground at every debug
// level so the spawned process is the one supervised.
const noForkFlag = "-nofork"

// Args builds the daemon command line.
func Args(cfg config.Routing, ifaceName string) []string {
	var args []string
	if cfg.ConfigPath != "" {
		args = append(args, "-f", cfg.ConfigPath)
	}
	if ifaceName != "" {
		args = append(args, "-i", ifaceName)
	}
	args = append(args, "-d", strconv.Itoa(cfg.DebugLevel))
	args = append(args, cfg.ExtraArgs...)
	if !slices.Contains(args, noForkFlag) {
		args = append(args, noForkFlag)
	}
	return args
}

// IsRunning reports whether the supervised process is alive.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc != nil && c.proc.alive()
}

// PID returns the daemon process id, or 0 when not running.
func (c *Controller) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil || !c.proc.alive() {
		return 0
	}
	return c.proc.cmd.Process.Pid
}

// Start stops any previous instance, spawns the daemon and waits until it has
// stayed alive through the settle window.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		c.logger.Debug("stop stale daemon", logging.Error(err))
	}

	proc, err := c.spawn()
	if err != nil {
		if c.observe != nil {
			c.observe(0, false)
		}
		return err
	}
	pid := proc.cmd.Process.Pid
	logger := c.logger.With(logging.Int("pid", pid))

	outcome := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		select {
		case <-proc.exited:
			return retry.Permanent(fmt.Errorf("%w: %v", ErrExited, proc.err))
		default:
		}
		if err := unix.Kill(pid, 0); err != nil {
			return fmt.Errorf("probe pid %d: %w", pid, err)
		}
		if time.Since(proc.started) < c.settle {
			return errSettling
		}
		return nil
	})
	if c.observe != nil {
		c.observe(outcome.Attempts, outcome.OK())
	}
	if !outcome.OK() {
		_ = c.Stop(context.WithoutCancel(ctx))
		return fmt.Errorf("routing daemon not ready after %d attempts (%s): %w", outcome.Attempts, outcome.Status, outcome.Err)
	}
	logger.Info("routing daemon running",
		logging.String("binary", c.binary),
		logging.Int("attempts", outcome.Attempts),
	)
	return nil
}

func (c *Controller) spawn() (*process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The daemon outlives the request that started it, so no CommandContext.
	cmd := exec.Command(c.binary, c.args...) //nolint:gosec
	out := &lineLogger{logger: c.logger}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", c.binary, err)
	}
	proc := &process{cmd: cmd, started: time.Now(), exited: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		proc.err = err
		close(proc.exited)
		c.logger.Debug("routing daemon exited", logging.Int("pid", cmd.Process.Pid), logging.Error(err))
	}()
	c.proc = proc
	c.logger.Debug("routing daemon spawned",
		logging.Int("pid", cmd.Process.Pid),
		logging.Strings("args", c.args),
	)
	return proc, nil
}

// Stop sends SIGTERM to the daemon's process group, waits up to the stop
// timeout, then sends SIGKILL. Stopping a stopped daemon is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	proc := c.proc
	c.proc = nil
	c.mu.Unlock()
	if proc == nil {
		return nil
	}
	select {
	case <-proc.exited:
		return nil
	default:
	}

	pid := proc.cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("terminate routing daemon: %w", err)
	}
	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()
	select {
	case <-proc.exited:
		c.logger.Info("routing daemon stopped", logging.Int("pid", pid))
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill routing daemon: %w", err)
	}
	<-proc.exited
	logging.WarnWithContext(c.logger, "routing daemon killed", "routing_daemon_killed",
		logging.Int("pid", pid),
		logging.Duration("stop_timeout", c.stopTimeout),
		logging.String(logging.FieldErrorHint, "raise routing.stop_timeout_ms if the daemon needs longer to exit"),
		logging.String(logging.FieldImpact, "daemon did not shut down cleanly"),
	)
	return nil
}

// lineLogger forwards daemon output to debug logs one line at a time.
type lineLogger struct {
	logger *slog.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			l.buf.Reset()
			l.buf.WriteString(line)
			break
		}
		if trimmed := bytes.TrimSpace([]byte(line)); len(trimmed) > 0 {
			l.logger.Debug("routing daemon output", logging.String("line", string(trimmed)))
		}
	}
	return len(p), nil
}
