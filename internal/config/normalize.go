package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeInterface()
	if err := c.normalizeRouting(); err != nil {
		return err
	}
	c.normalizeChannel()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeMetrics()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if value, ok := os.LookupEnv("PROXIMA_STATE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.StateDir = value
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.StateDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.ControlSocketPath) == "" {
		c.Paths.ControlSocketPath = filepath.Join(c.Paths.StateDir, defaultControlSocketName)
	}
	if c.Paths.ControlSocketPath, err = expandPath(c.Paths.ControlSocketPath); err != nil {
		return fmt.Errorf("paths.control_socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeInterface() {
	c.Interface.Name = strings.TrimSpace(c.Interface.Name)
	c.Interface.Address = strings.TrimSpace(c.Interface.Address)
	c.Interface.Netmask = strings.TrimSpace(c.Interface.Netmask)
	c.Interface.ESSID = strings.TrimSpace(c.Interface.ESSID)
	commands := c.Interface.Commands[:0]
	for _, cmd := range c.Interface.Commands {
		if trimmed := strings.TrimSpace(cmd); trimmed != "" {
			commands = append(commands, trimmed)
		}
	}
	c.Interface.Commands = commands
	if c.Interface.DownDelayMillis < 0 {
		c.Interface.DownDelayMillis = 0
	}
	if c.Interface.UpDelayMillis < 0 {
		c.Interface.UpDelayMillis = 0
	}
}

func (c *Config) normalizeRouting() error {
	c.Routing.Binary = strings.TrimSpace(c.Routing.Binary)
	if c.Routing.Binary == "" {
		c.Routing.Binary = defaultRoutingBinary
	}
	if strings.TrimSpace(c.Routing.ConfigPath) != "" {
		var err error
		if c.Routing.ConfigPath, err = expandPath(strings.TrimSpace(c.Routing.ConfigPath)); err != nil {
			return fmt.Errorf("routing.config_path: %w", err)
		}
	}
	if c.Routing.StartAttempts <= 0 {
		c.Routing.StartAttempts = defaultRoutingStartAttempts
	}
	if c.Routing.StartBackoffMillis <= 0 {
		c.Routing.StartBackoffMillis = defaultRoutingStartBackoff
	}
	if c.Routing.StopTimeoutMillis <= 0 {
		c.Routing.StopTimeoutMillis = defaultRoutingStopTimeout
	}
	return nil
}

func (c *Config) normalizeChannel() {
	if c.Channel.MaxPending <= 0 {
		c.Channel.MaxPending = defaultChannelMaxPending
	}
	if c.Channel.RequestTimeoutSeconds <= 0 {
		c.Channel.RequestTimeoutSeconds = defaultChannelRequestTimeout
	}
	if c.Channel.DialTimeoutSeconds <= 0 {
		c.Channel.DialTimeoutSeconds = defaultChannelDialTimeout
	}
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Paths.StateDir, defaultHistoryFile)
	}
	var err error
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Metrics.Bind == "" {
		c.Metrics.Bind = defaultMetricsBind
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
