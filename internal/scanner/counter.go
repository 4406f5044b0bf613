package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"shelf/internal/events"
)

// EventLogger is the slice of the progress reporter the counter needs.
type EventLogger interface {
	Log(level, message string, metadata map[string]string)
}

// CountFiles walks each folder and returns every file matching the predicate,
// emitting one progress event per folder and one grand-total summary event.
// An unreadable folder, and each unreadable entry inside a folder, produces a
// warn event and contributes zero; neither aborts the walk. Cancellation is
// honored between folders.
func CountFiles(ctx context.Context, folders []string, relevant func(path string) bool, log EventLogger) ([]string, error) {
	var all []string
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		files, err := countFolder(ctx, folder, relevant, log)
		if err != nil {
			log.Log(events.LevelWarn,
				fmt.Sprintf("Folder %s: skipped (%v)", folder, err),
				map[string]string{"folder": folder})
			continue
		}
		log.Log(events.LevelInfo,
			fmt.Sprintf("Folder %s: Found %d files", folder, len(files)),
			map[string]string{"folder": folder, "count": fmt.Sprintf("%d", len(files))})
		all = append(all, files...)
	}
	if err := ctx.Err(); err != nil {
		return all, err
	}
	log.Log(events.LevelInfo,
		fmt.Sprintf("Total files across all folders: %d", len(all)),
		map[string]string{"total": fmt.Sprintf("%d", len(all))})
	return all, nil
}

func countFolder(ctx context.Context, folder string, relevant func(path string) bool, log EventLogger) ([]string, error) {
	var files []string
	err := filepath.WalkDir(folder, func(path string, entry fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			if path == folder {
				return walkErr
			}
			// Unreadable entry: warn, contribute zero, keep walking the rest.
			log.Log(events.LevelWarn,
				fmt.Sprintf("Skipping %s: %v", path, walkErr),
				map[string]string{"path": path})
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if relevant(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
