package config

const (
	defaultConfigPath              = "~/.config/proxima/config.toml"
	defaultStateDir                = "~/.local/share/proxima"
	defaultSocketName              = "proxima.sock"
	defaultControlSocketName       = "proximad.sock"
	defaultInterfaceName           = "wlan0"
	defaultInterfaceAddress        = "192.168.2.102"
	defaultInterfaceNetmask        = "255.255.255.0"
	defaultInterfaceESSID          = "proxima-mesh"
	defaultInterfaceChannel        = 1
	defaultInterfaceDownDelay      = 1000
	defaultInterfaceUpDelay        = 3000
	defaultRoutingBinary           = "olsrd"
	defaultRoutingConfigPath       = "/etc/olsrd/olsrd.conf"
	defaultRoutingDebugLevel       = 2
	defaultRoutingStartAttempts    = 5
	defaultRoutingStartBackoff     = 1000
	defaultRoutingStopTimeout      = 3000
	defaultRoutingLivenessInterval = 10
	defaultChannelMaxPending       = 256
	defaultChannelRequestTimeout   = 30
	defaultChannelDialTimeout      = 5
	defaultHistoryFile             = "history.db"
	defaultHistoryRetentionDays    = 30
	defaultMetricsBind             = "127.0.0.1:9478"
	defaultNotifyTimeout           = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

func defaultInterfaceCommands() []string {
	return []string{
		"ifconfig {iface} {address} netmask {netmask}",
		"ifconfig {iface} up",
		"iwconfig {iface} mode ad-hoc",
		"iwconfig {iface} essid {essid}",
		"iwconfig {iface} channel {channel}",
		"iwconfig {iface} commit",
	}
}

// Default returns a Config populated with repository defaults. Paths are left
// unexpanded; Load normalizes them.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Interface: Interface{
			Name:            defaultInterfaceName,
			Address:         defaultInterfaceAddress,
			Netmask:         defaultInterfaceNetmask,
			ESSID:           defaultInterfaceESSID,
			Channel:         defaultInterfaceChannel,
			Commands:        defaultInterfaceCommands(),
			DownDelayMillis: defaultInterfaceDownDelay,
			UpDelayMillis:   defaultInterfaceUpDelay,
			EnableIPForward: true,
			Monitor:         true,
		},
		Routing: Routing{
			Binary:                  defaultRoutingBinary,
			ConfigPath:              defaultRoutingConfigPath,
			DebugLevel:              defaultRoutingDebugLevel,
			StartAttempts:           defaultRoutingStartAttempts,
			StartBackoffMillis:      defaultRoutingStartBackoff,
			StopTimeoutMillis:       defaultRoutingStopTimeout,
			LivenessIntervalSeconds: defaultRoutingLivenessInterval,
		},
		Channel: Channel{
			MaxPending:            defaultChannelMaxPending,
			RequestTimeoutSeconds: defaultChannelRequestTimeout,
			DialTimeoutSeconds:    defaultChannelDialTimeout,
		},
		History: History{
			Enabled:       true,
			RetentionDays: defaultHistoryRetentionDays,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
