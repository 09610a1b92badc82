package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"proxima/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !notifications.Enabled(cfg) {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications disabled: set notifications.ntfy_topic")
				return nil
			}
			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			if err := notifications.NewService(cfg).TestNotification(runCtx); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
