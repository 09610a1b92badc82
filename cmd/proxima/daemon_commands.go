package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"proxima/internal/daemonctl"
	"proxima/internal/deps"
	"proxima/internal/ipc"
	"proxima/internal/preflight"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the proxima daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				startWaitTimeout,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			printStartState(stdout, result, "Daemon started")
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Log level for the launched daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the proxima daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the proxima daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx, restartLogLevel),
				stopGracePeriod,
				startWaitTimeout,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			printStartState(stdout, result.Start, "Daemon restarted")
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Log level for the launched daemon")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and endpoint status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			report := statusReport{
				Daemon:       daemonctl.Snapshot(ctx.socketPath()),
				Checks:       preflight.RunAll(cfg),
				Dependencies: preflight.CheckSystemDeps(cfg),
			}
			if statusJSON {
				return writeJSON(cmd, report)
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range statusLines(report.Daemon, ctx.socketPath(), colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)
			for _, line := range checkLines(report.Checks, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)
			for _, line := range dependencyLines(report.Dependencies, colorize) {
				fmt.Fprintln(stdout, line)
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print status as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

type statusReport struct {
	Daemon       *ipc.StatusResponse `json:"daemon"`
	Checks       []preflight.Result  `json:"checks"`
	Dependencies []deps.Status       `json:"dependencies"`
}

func printStartState(out io.Writer, result daemonctl.StartResult, started string) {
	switch result.State {
	case daemonctl.StartStateStarted:
		fmt.Fprintln(out, started)
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintln(out, "Daemon already running")
	case daemonctl.StartStateRequested:
		if msg := strings.TrimSpace(result.Message); msg != "" {
			fmt.Fprintln(out, msg)
			return
		}
		fmt.Fprintln(out, "Start request sent")
	}
}

// statusLines renders a status snapshot. A zero PID means the control socket
// was unreachable.
func statusLines(status *ipc.StatusResponse, socket string, colorize bool) []string {
	var lines []string
	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	if status == nil || status.PID == 0 {
		lines = append(lines, renderStatusLine("Proximad", statusError, "Not running", colorize))
		lines = append(lines, renderStatusLine("Control socket", statusInfo, socket, colorize))
		return lines
	}
	if status.Running {
		lines = append(lines, renderStatusLine("Proximad", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Proximad", statusWarn, fmt.Sprintf("Stopped (pid %d)", status.PID), colorize))
	}
	if !status.StartedAt.IsZero() {
		lines = append(lines, renderStatusLine("Started", statusInfo, status.StartedAt.Local().Format(time.DateTime), colorize))
	}
	if status.SessionID != "" {
		lines = append(lines, renderStatusLine("Session", statusInfo, status.SessionID, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Endpoint", colorize)...)
	state := stateLabel(status.State)
	if !status.StateSince.IsZero() {
		state = fmt.Sprintf("%s since %s", state, status.StateSince.Local().Format(time.TimeOnly))
	}
	lines = append(lines, renderStatusLine("State", stateKind(status.State), state, colorize))
	lines = append(lines, renderStatusLine("Clients", statusInfo, fmt.Sprintf("%d connected, %d waiting", status.Clients, status.Waiters), colorize))
	if status.Attempts > 0 {
		lines = append(lines, renderStatusLine("Attempts", statusInfo, fmt.Sprintf("%d", status.Attempts), colorize))
	}
	if status.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, status.LastError, colorize))
	}
	routing := statusWarn
	if status.RoutingUp {
		routing = statusOK
	}
	lines = append(lines, renderStatusLine("Routing daemon", routing, yesNo(status.RoutingUp), colorize))
	if status.Interface != "" {
		lines = append(lines, renderStatusLine("Interface", statusInfo, fmt.Sprintf("%s (monitored: %s)", status.Interface, yesNo(status.LinkMonitor)), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Paths", colorize)...)
	lines = append(lines, renderStatusLine("Endpoint socket", statusInfo, status.SocketPath, colorize))
	lines = append(lines, renderStatusLine("Control socket", statusInfo, socket, colorize))
	if status.HistoryPath != "" {
		lines = append(lines, renderStatusLine("History", statusInfo, status.HistoryPath, colorize))
	}
	if status.MetricsAddr != "" {
		lines = append(lines, renderStatusLine("Metrics", statusInfo, "http://"+status.MetricsAddr+"/metrics", colorize))
	}
	return lines
}

func checkLines(checks []preflight.Result, colorize bool) []string {
	lines := renderSectionHeader("System Checks", colorize)
	for _, check := range checks {
		kind := statusOK
		if !check.Passed {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	return lines
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := renderSectionHeader("Dependencies", colorize)
	var missing []string
	for _, dep := range statuses {
		if dep.Available {
			lines = append(lines, renderStatusLine(dep.Name, statusOK, fmt.Sprintf("Ready (command: %s)", dep.Command), colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		ConfigPath: ctx.configPath(),
		SocketPath: ctx.socketOverride(),
		LogLevel:   strings.TrimSpace(logLevel),
	}
}
