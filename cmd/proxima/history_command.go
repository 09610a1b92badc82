package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"proxima/internal/history"
	"proxima/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded neighbor sightings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if asJSON {
					sightings := resp.Sightings
					if sightings == nil {
						sightings = []history.Sighting{}
					}
					return writeJSON(cmd, sightings)
				}
				out := cmd.OutOrStdout()
				if len(resp.Sightings) == 0 {
					fmt.Fprintln(out, "No neighbors recorded")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"Address", "Interface", "Hardware", "State", "First Seen", "Last Seen", "Seen"},
					sightingRows(resp.Sightings),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "Maximum number of sightings")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print sightings as JSON")
	return cmd
}

func sightingRows(sightings []history.Sighting) [][]string {
	rows := make([][]string, 0, len(sightings))
	for _, s := range sightings {
		rows = append(rows, []string{
			s.Address,
			s.Interface,
			s.HardwareAddr,
			stateLabel(s.LastState),
			s.FirstSeen.Local().Format(time.DateTime),
			s.LastSeen.Local().Format(time.DateTime),
			strconv.FormatInt(s.TimesSeen, 10),
		})
	}
	return rows
}
