package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateInterface(); err != nil {
		return err
	}
	if err := c.validateRouting(); err != nil {
		return err
	}
	if err := c.validateChannel(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateInterface() error {
	if c.Interface.Name == "" {
		return errors.New("interface.name must be set")
	}
	if c.Interface.Address != "" && net.ParseIP(c.Interface.Address) == nil {
		return fmt.Errorf("interface.address %q is not an IP address", c.Interface.Address)
	}
	if c.Interface.Netmask != "" && net.ParseIP(c.Interface.Netmask) == nil {
		return fmt.Errorf("interface.netmask %q is not a dotted netmask", c.Interface.Netmask)
	}
	if c.Interface.Channel < 0 || c.Interface.Channel > 196 {
		return fmt.Errorf("interface.channel %d out of range", c.Interface.Channel)
	}
	return nil
}

func (c *Config) validateRouting() error {
	if c.Routing.DebugLevel < 0 || c.Routing.DebugLevel > 9 {
		return errors.New("routing.debug_level must be between 0 and 9")
	}
	if c.Routing.LivenessIntervalSeconds < 0 {
		return errors.New("routing.liveness_interval_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateChannel() error {
	if c.Channel.MaxPending > 1<<20 {
		return errors.New("channel.max_pending must be <= 1048576")
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if !c.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Bind); err != nil {
		return fmt.Errorf("metrics.bind: %w", err)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	u, err := url.Parse(topic)
	if err != nil {
		return fmt.Errorf("notifications.ntfy_topic: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic %q must be an http(s) URL", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", strings.TrimSpace(c.Logging.Level))
	}
	return nil
}
