package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shelf/internal/catalog"
	"shelf/internal/config"
	"shelf/internal/events"
	"shelf/internal/fileutil"
	"shelf/internal/logging"
	"shelf/internal/operations"
	"shelf/internal/organizer"
	"shelf/internal/scanner"
	"shelf/internal/workerpool"
)

// Importer pulls supported audio files out of the configured import folders,
// drops them into their canonical library location, and catalogs them.
type Importer struct {
	cfg     *config.Config
	catalog *catalog.Store
	logger  *slog.Logger
}

// New builds an importer over the given catalog store.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Importer {
	return &Importer{
		cfg:     cfg,
		catalog: store,
		logger:  logging.WithComponent(logger, "importer"),
	}
}

type importItem struct {
	path string
	root string
}

type importResult struct {
	item    importItem
	book    *catalog.Book
	err     error
	skipped bool
}

// Work returns the import operation closure. The pre-count covers every
// import folder; each file counts once whether it imported, was skipped as a
// duplicate, or failed.
func (im *Importer) Work() operations.Work {
	return func(ctx context.Context, rep *operations.Reporter) error {
		files, err := scanner.CountFiles(ctx, im.cfg.Paths.ImportDirs, im.relevantFile, rep)
		if err != nil {
			return err
		}
		items := make([]importItem, 0, len(files))
		for _, path := range files {
			items = append(items, importItem{path: path, root: im.rootFor(path)})
		}
		rep.SetTotal(len(items))
		if len(items) == 0 {
			rep.Log(events.LevelInfo, "Import complete: nothing to import", nil)
			return nil
		}

		var imported, skipped, failed int
		poolErr := workerpool.Run(ctx, im.cfg.Scanner.Workers, items,
			func(ctx context.Context, item importItem) importResult {
				return im.importFile(item)
			},
			func(res importResult) {
				switch {
				case res.err != nil:
					failed++
					rep.Log(events.LevelWarn,
						fmt.Sprintf("Skipping %s: %v", res.item.path, res.err),
						map[string]string{"path": res.item.path})
				case res.skipped:
					skipped++
					rep.Log(events.LevelInfo,
						fmt.Sprintf("Skipping %s: already in library", res.item.path),
						map[string]string{"path": res.item.path})
				default:
					imported++
					if err := im.catalog.Upsert(ctx, res.book); err != nil {
						im.logger.Warn("catalog upsert failed",
							logging.String("path", res.book.Path), logging.Error(err))
					}
				}
				rep.Advance(map[string]string{"path": res.item.path})
			})
		if poolErr != nil {
			return poolErr
		}

		rep.Log(events.LevelInfo,
			fmt.Sprintf("Import complete: %d imported, %d skipped, %d failed", imported, skipped, failed),
			map[string]string{
				"imported": fmt.Sprintf("%d", imported),
				"skipped":  fmt.Sprintf("%d", skipped),
				"failed":   fmt.Sprintf("%d", failed),
			})
		return nil
	}
}

func (im *Importer) relevantFile(path string) bool {
	return im.cfg.IsSupportedExtension(filepath.Ext(path))
}

func (im *Importer) rootFor(path string) string {
	for _, root := range im.cfg.Paths.ImportDirs {
		if strings.HasPrefix(path, root+string(os.PathSeparator)) || path == root {
			return root
		}
	}
	return filepath.Dir(path)
}

// importFile moves one file into the library. Author/Series structure inside
// the import folder carries over into the probed metadata.
func (im *Importer) importFile(item importItem) importResult {
	info, err := os.Stat(item.path)
	if err != nil {
		return importResult{item: item, err: err}
	}

	book := scanner.Probe(item.root, item.path, info)
	target := organizer.TargetPath(im.cfg.Paths.LibraryDir, book)
	if _, err := os.Stat(target); err == nil {
		return importResult{item: item, skipped: true}
	}
	if err := fileutil.MoveFile(item.path, target); err != nil {
		return importResult{item: item, err: err}
	}
	book.Path = target
	return importResult{item: item, book: book}
}
