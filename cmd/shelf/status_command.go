package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon state and operation counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiClient) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Daemon running:  %s\n", yesNo(status.Daemon.Running))
				fmt.Fprintf(out, "PID:             %d\n", status.Daemon.PID)
				if status.Daemon.OperationsDB != "" {
					fmt.Fprintf(out, "Operations DB:   %s\n", status.Daemon.OperationsDB)
				}
				if status.Daemon.LockFilePath != "" {
					fmt.Fprintf(out, "Lock file:       %s\n", status.Daemon.LockFilePath)
				}
				fmt.Fprintf(out, "Pending:         %d\n", status.Pending)

				if len(status.Operations) == 0 {
					return nil
				}
				statuses := make([]string, 0, len(status.Operations))
				for name := range status.Operations {
					statuses = append(statuses, name)
				}
				sort.Strings(statuses)
				rows := make([][]string, 0, len(statuses))
				for _, name := range statuses {
					rows = append(rows, []string{name, strconv.Itoa(status.Operations[name])})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, 2))
				return nil
			})
		},
	}
}
