package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state directory and socket locations.
type Paths struct {
	StateDir          string `toml:"state_dir"`
	SocketPath        string `toml:"socket_path"`
	ControlSocketPath string `toml:"control_socket_path"`
}

// Interface describes how the wireless mesh interface is brought up.
//
// Commands run in order through /bin/sh. Placeholders {iface}, {address},
// {netmask}, {essid} and {channel} are substituted before execution.
type Interface struct {
	Name            string   `toml:"name"`
	Address         string   `toml:"address"`
	Netmask         string   `toml:"netmask"`
	ESSID           string   `toml:"essid"`
	Channel         int      `toml:"channel"`
	Commands        []string `toml:"commands"`
	DownDelayMillis int      `toml:"down_delay_ms"`
	UpDelayMillis   int      `toml:"up_delay_ms"`
	EnableIPForward bool     `toml:"enable_ip_forward"`
	Monitor         bool     `toml:"monitor"`
}

// Routing configures supervision of the mesh routing daemon.
type Routing struct {
	Binary                  string   `toml:"binary"`
	ConfigPath              string   `toml:"config_path"`
	DebugLevel              int      `toml:"debug_level"`
	ExtraArgs               []string `toml:"extra_args"`
	StartAttempts           int      `toml:"start_attempts"`
	StartBackoffMillis      int      `toml:"start_backoff_ms"`
	StopTimeoutMillis       int      `toml:"stop_timeout_ms"`
	LivenessIntervalSeconds int      `toml:"liveness_interval_seconds"`
}

// Channel bounds the client side listener table.
type Channel struct {
	MaxPending            int `toml:"max_pending"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	DialTimeoutSeconds    int `toml:"dial_timeout_seconds"`
}

// History configures the neighbor sightings database.
type History struct {
	Enabled       bool   `toml:"enabled"`
	Path          string `toml:"path"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Notifications configures ntfy push alerts for mesh state changes. An empty
// topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for proxima.
//
// Configuration sections by subsystem:
//   - Paths: state directory and unix socket locations
//   - Interface: mesh interface bring-up steps
//   - Routing: routing daemon binary and supervision limits
//   - Channel: client listener table bounds and timeouts
//   - History: neighbor sightings database
//   - Metrics: Prometheus endpoint
//   - Notifications: ntfy alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Interface     Interface     `toml:"interface"`
	Routing       Routing       `toml:"routing"`
	Channel       Channel       `toml:"channel"`
	History       History       `toml:"history"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The second return value is the
// resolved path and the third reports whether that file exists.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("proxima.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory and the parents of both sockets.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.StateDir,
		filepath.Dir(c.Paths.SocketPath),
		filepath.Dir(c.Paths.ControlSocketPath),
	}
	if c.History.Enabled {
		dirs = append(dirs, filepath.Dir(c.History.Path))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the single-instance lock file for the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "proximad.lock")
}

// PIDPath is where the running daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "proximad.pid")
}

// LogPath is the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.StateDir, "proxima.log")
}

// NotifyTimeout bounds one ntfy request.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// RequestTimeout is how long a client listener may stay pending.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Channel.RequestTimeoutSeconds) * time.Second
}

// DialTimeout bounds the client transport dial.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Channel.DialTimeoutSeconds) * time.Second
}

// LivenessInterval is how often the daemon probes the routing process.
func (c *Config) LivenessInterval() time.Duration {
	return time.Duration(c.Routing.LivenessIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
