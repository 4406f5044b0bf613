package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"shelf/internal/events"
)

// followOperation streams events for one operation until it goes terminal.
// On a TTY the counter events drive a progress bar; otherwise each event is
// printed as a plain line. The final status comes from a follow-up read
// because late joiners may only see the terminal snapshot.
func followOperation(cmd *cobra.Command, client *apiClient, id string) error {
	out := cmd.OutOrStdout()
	interactive := isTerminal(os.Stdout)

	var bar *progressbar.ProgressBar
	handle := func(event events.Event) {
		progress, hasProgress := metadataInt(event.Metadata, "progress")
		total, _ := metadataInt(event.Metadata, "total")

		if !interactive {
			fmt.Fprintf(out, "[%s] %s\n", event.Level, event.Message)
			return
		}
		if !hasProgress || total <= 0 {
			if event.Level != events.LevelInfo {
				fmt.Fprintf(out, "[%s] %s\n", event.Level, event.Message)
			}
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(shortID(id)),
				progressbar.OptionSetWriter(out),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		bar.Set(progress) //nolint:errcheck
	}

	if err := client.Follow(cmd.Context(), id, handle); err != nil {
		return err
	}
	if bar != nil {
		bar.Finish() //nolint:errcheck
	}

	op, err := client.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	switch {
	case op.Error != "":
		fmt.Fprintf(out, "Operation %s: %s\n", op.Status, op.Error)
	case op.Message != "":
		fmt.Fprintf(out, "Operation %s: %s\n", op.Status, op.Message)
	default:
		fmt.Fprintf(out, "Operation %s\n", op.Status)
	}
	return nil
}

func metadataInt(metadata map[string]string, key string) (int, bool) {
	raw, ok := metadata[key]
	if !ok {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
