package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSubmitCommands builds one top-level command per operation type so the
// common workflows read as `shelf scan` rather than `shelf operations submit`.
func newSubmitCommands(ctx *commandContext) []*cobra.Command {
	scan := newSubmitCommand(ctx, submitDef{
		use:   "scan",
		short: "Scan the library and refresh the catalog",
		typ:   "scan",
		force: true,
	})
	organize := newSubmitCommand(ctx, submitDef{
		use:   "organize",
		short: "Move catalogued files into the Author/Series layout",
		typ:   "organize",
	})
	imp := newSubmitCommand(ctx, submitDef{
		use:   "import",
		short: "Import audio files from the configured import directories",
		typ:   "import",
	})
	fetch := newSubmitCommand(ctx, submitDef{
		use:   "fetch",
		short: "Fetch missing metadata from the lookup provider",
		typ:   "metadata_fetch",
	})
	return []*cobra.Command{scan, organize, imp, fetch}
}

type submitDef struct {
	use   string
	short string
	typ   string
	force bool
}

func newSubmitCommand(ctx *commandContext, def submitDef) *cobra.Command {
	var follow bool
	var force bool

	cmd := &cobra.Command{
		Use:   def.use,
		Short: def.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiClient) error {
				op, err := client.Submit(cmd.Context(), def.typ, force)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queued %s operation %s\n", op.Type, op.ID)
				if !follow {
					return nil
				}
				return followOperation(cmd, client, op.ID)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream progress until the operation finishes")
	if def.force {
		cmd.Flags().BoolVar(&force, "force", false, "Reprocess files even when size and mtime are unchanged")
	}
	return cmd
}
