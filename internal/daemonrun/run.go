// Package daemonrun is the proximad process entry point: it builds the
// logger, writes the pid file, runs the daemon and control socket, and waits
// for a signal or a Stop request.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"proxima/internal/config"
	"proxima/internal/daemon"
	"proxima/internal/deps"
	"proxima/internal/ipc"
	"proxima/internal/logging"
	"proxima/internal/notifications"
	"proxima/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// DaemonOptions are passed to daemon.New.
	DaemonOptions []daemon.Option
}

// Run starts the proxima daemon and blocks until it is told to stop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logPath := cfg.LogPath()
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := daemon.New(signalCtx, cfg, logger, opts.DaemonOptions...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.ControlSocketPath, d, cancel, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another proximad instance and socket permissions"),
			logging.String(logging.FieldImpact, "mesh clients cannot connect until the daemon starts"),
		)
		notifyCtx, notifyCancel := context.WithTimeout(signalCtx, cfg.NotifyTimeout()+time.Second)
		if nerr := notifications.NewService(cfg).NotifyError(notifyCtx, err, "daemon start"); nerr != nil {
			logger.Debug("start failure notification not sent", logging.Error(nerr))
		}
		notifyCancel()
	}

	<-signalCtx.Done()
	logger.Info("proxima daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	statuses := preflight.CheckSystemDeps(cfg)
	required, optional := deps.Missing(statuses)
	checks := preflight.RunAll(cfg)
	failed := preflight.Failed(checks)
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("interface", cfg.Interface.Name),
		logging.Int("interface_steps", len(cfg.Interface.Commands)),
		logging.String("routing_binary", cfg.Routing.Binary),
		logging.Int("dependencies_missing", required),
		logging.Int("dependencies_optional_missing", optional),
		logging.Int("checks_failed", len(failed)),
		logging.Bool("history_enabled", cfg.History.Enabled),
		logging.Bool("metrics_enabled", cfg.Metrics.Enabled),
	)
	for _, status := range statuses {
		if status.Available || status.Optional {
			continue
		}
		logging.WarnWithContext(logger, "dependency unavailable", "dependency_missing",
			logging.String("dependency", status.Name),
			logging.String("command", status.Command),
			logging.String(logging.FieldErrorHint, status.Detail),
			logging.String(logging.FieldImpact, "discover requests fail until it is installed"),
		)
	}
	for _, check := range failed {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String(logging.FieldErrorHint, check.Detail),
			logging.String(logging.FieldImpact, "discovery may fail on this host"),
		)
	}
}
