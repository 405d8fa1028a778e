package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}

			workers := "stopped"
			if health.Workers {
				workers = "running"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon: %s (workers %s)\n", health.Status, workers)
			fmt.Fprintln(out, renderTable(
				[]string{"Total", "Pending", "Processing", "Completed", "Failed"},
				[][]string{{
					strconv.Itoa(health.Reports),
					strconv.Itoa(health.Pending),
					strconv.Itoa(health.Processing),
					strconv.Itoa(health.Completed),
					strconv.Itoa(health.Failed),
				}},
				0, 1, 2, 3, 4,
			))
			return nil
		},
	}
}
