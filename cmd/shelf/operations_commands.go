package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shelf/internal/operations"
)

func newOperationsCommand(ctx *commandContext) *cobra.Command {
	opsCmd := &cobra.Command{
		Use:     "operations",
		Aliases: []string{"ops"},
		Short:   "Inspect and manage operations",
	}

	opsCmd.AddCommand(newOperationsListCommand(ctx))
	opsCmd.AddCommand(newOperationsShowCommand(ctx))
	opsCmd.AddCommand(newOperationsCancelCommand(ctx))

	return opsCmd
}

func newOperationsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operations, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiClient) error {
				ops, err := client.List(cmd.Context(), strings.TrimSpace(statusFilter))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(ops) == 0 {
					fmt.Fprintln(out, "No operations found.")
					return nil
				}

				rows := make([][]string, 0, len(ops))
				for _, op := range ops {
					rows = append(rows, []string{
						op.ID,
						string(op.Type),
						string(op.Status),
						formatProgress(op),
						formatWhen(op.CreatedAt),
						truncate(operationSummary(op), 60),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Type", "Status", "Progress", "Created", "Summary"},
					rows, 4))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Filter by status (queued, processing, completed, failed, canceled)")
	return cmd
}

func newOperationsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <operation-id>",
		Short: "Show full details for one operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiClient) error {
				op, err := client.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				printOperation(cmd, op)
				return nil
			})
		},
	}
}

func newOperationsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <operation-id>",
		Short: "Request cancellation of a queued or running operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiClient) error {
				op, err := client.Cancel(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if op.Status == operations.StatusProcessing {
					fmt.Fprintf(out, "Cancellation requested for %s; the operation stops at its next checkpoint.\n", shortID(op.ID))
				} else {
					fmt.Fprintf(out, "Operation %s is %s.\n", shortID(op.ID), op.Status)
				}
				return nil
			})
		},
	}
}

func printOperation(cmd *cobra.Command, op *operations.Operation) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Operation %s\n", op.ID)
	fmt.Fprintf(out, "  Type:      %s\n", op.Type)
	fmt.Fprintf(out, "  Status:    %s\n", op.Status)
	fmt.Fprintf(out, "  Progress:  %s\n", formatProgress(op))
	fmt.Fprintf(out, "  Created:   %s\n", formatWhen(op.CreatedAt))
	if op.StartedAt != nil {
		fmt.Fprintf(out, "  Started:   %s\n", formatWhen(*op.StartedAt))
	}
	if op.CompletedAt != nil {
		fmt.Fprintf(out, "  Finished:  %s\n", formatWhen(*op.CompletedAt))
	}
	if op.Message != "" {
		fmt.Fprintf(out, "  Message:   %s\n", op.Message)
	}
	if op.Error != "" {
		fmt.Fprintf(out, "  Error:     %s\n", op.Error)
	}
	if op.LogPath != "" {
		fmt.Fprintf(out, "  Journal:   %s\n", op.LogPath)
	}
}

func operationSummary(op *operations.Operation) string {
	if op.Error != "" {
		return op.Error
	}
	return op.Message
}

func formatProgress(op *operations.Operation) string {
	if op.Total > 0 {
		return fmt.Sprintf("%d/%d", op.Progress, op.Total)
	}
	return strconv.Itoa(op.Progress)
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, limit int) string {
	if limit <= 3 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
