package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"proxima/internal/protocol"
)

func newMeshCommands(ctx *commandContext) []*cobra.Command {
	var discoverTimeout time.Duration
	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Bring up the mesh interface and routing daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := context.WithTimeout(cmd.Context(), discoverTimeout)
			defer cancel()
			client, err := connectMesh(runCtx, ctx.configValue())
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.discover(runCtx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Neighbor discovery running")
			return nil
		},
	}
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", time.Minute, "Give up after this long")

	var (
		neighborsTimeout time.Duration
		skipDiscover     bool
		neighborsJSON    bool
	)
	neighborsCmd := &cobra.Command{
		Use:   "neighbors",
		Short: "List directly reachable mesh nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := context.WithTimeout(cmd.Context(), neighborsTimeout)
			defer cancel()
			client, err := connectMesh(runCtx, ctx.configValue())
			if err != nil {
				return err
			}
			defer client.Close()
			if !skipDiscover {
				if err := client.discover(runCtx); err != nil {
					return err
				}
			}
			list, err := client.neighbors(runCtx)
			if err != nil {
				return err
			}
			if neighborsJSON {
				if list == nil {
					list = []protocol.Neighbor{}
				}
				return writeJSON(cmd, list)
			}
			printNeighbors(cmd.OutOrStdout(), list)
			return nil
		},
	}
	neighborsCmd.Flags().DurationVar(&neighborsTimeout, "timeout", time.Minute, "Give up after this long")
	neighborsCmd.Flags().BoolVar(&skipDiscover, "no-discover", false, "Query without starting discovery first")
	neighborsCmd.Flags().BoolVar(&neighborsJSON, "json", false, "Print neighbors as JSON")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Start discovery and print the neighbor list whenever it changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			client, err := connectMesh(runCtx, ctx.configValue())
			if err != nil {
				return err
			}
			defer client.Close()
			return watchNeighbors(runCtx, client, cmd.OutOrStdout())
		},
	}

	return []*cobra.Command{discoverCmd, neighborsCmd, watchCmd}
}

// watchNeighbors prints the list once, then again after every state change
// broadcast. It returns nil when ctx ends and an error if the endpoint goes
// away.
func watchNeighbors(ctx context.Context, client *meshClient, out io.Writer) error {
	if err := client.discover(ctx); err != nil {
		return err
	}
	refresh := func(state string) error {
		list, err := client.neighbors(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %s, %d neighbors\n", time.Now().Format(time.TimeOnly), stateLabel(state), len(list))
		printNeighbors(out, list)
		return nil
	}
	if err := refresh("running"); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-client.Lost():
			return fmt.Errorf("endpoint connection lost: %w", err)
		case env := <-client.Events():
			changed, ok := env.Body.(protocol.NeighborsChanged)
			if !ok {
				continue
			}
			if err := refresh(changed.State); err != nil {
				return err
			}
		}
	}
}

// printNeighbors renders a table on terminals and one address per line
// otherwise, so the output pipes cleanly.
func printNeighbors(out io.Writer, list []protocol.Neighbor) {
	if !shouldColorize(out) {
		for _, n := range list {
			fmt.Fprintln(out, n.Address)
		}
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No neighbors")
		return
	}
	fmt.Fprint(out, renderTable([]string{"Address", "Hardware", "State", "Interface"}, neighborRows(list), nil))
}

func neighborRows(list []protocol.Neighbor) [][]string {
	rows := make([][]string, 0, len(list))
	for _, n := range list {
		rows = append(rows, []string{n.Address, n.HardwareAddr, stateLabel(n.State), n.Interface})
	}
	return rows
}
