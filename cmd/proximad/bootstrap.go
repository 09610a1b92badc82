package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"proxima/internal/config"
	"proxima/internal/daemonrun"
)

type flags struct {
	configPath  string
	socketPath  string
	logLevel    string
	development bool
}

func newCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "proximad",
		Short:         "Run the proxima mesh endpoint",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    f.logLevel,
				Development: f.development,
			})
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&f.socketPath, "socket", "", "Override the control socket path")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&f.development, "development", false, "Include source locations in log output")
	return cmd
}

func loadConfig(f flags) (*config.Config, error) {
	cfg, _, _, err := config.Load(strings.TrimSpace(f.configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if socket := strings.TrimSpace(f.socketPath); socket != "" {
		expanded, err := config.ExpandPath(socket)
		if err != nil {
			return nil, fmt.Errorf("resolve socket path: %w", err)
		}
		cfg.Paths.ControlSocketPath = expanded
	}
	return cfg, nil
}
