package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"shelf/internal/catalog"
	"shelf/internal/config"
	"shelf/internal/events"
	"shelf/internal/logging"
	"shelf/internal/operations"
	"shelf/internal/workerpool"
)

// Scanner catalogs the library: a pre-count over the library folders commits
// the operation total, then a bounded pool probes each file and upserts it.
type Scanner struct {
	cfg     *config.Config
	catalog *catalog.Store
	logger  *slog.Logger
}

// New builds a scanner over the given catalog store.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Scanner {
	return &Scanner{
		cfg:     cfg,
		catalog: store,
		logger:  logging.WithComponent(logger, "scanner"),
	}
}

type scanOutcome int

const (
	outcomeAdded scanOutcome = iota
	outcomeUpdated
	outcomeSkipped
	outcomeFailed
)

type scanResult struct {
	path    string
	outcome scanOutcome
	err     error
}

// Work returns the scan operation closure. When force is false, files whose
// size and mtime match the existing catalog entry are skipped; force rescans
// everything.
func (s *Scanner) Work(force bool) operations.Work {
	return func(ctx context.Context, rep *operations.Reporter) error {
		files, err := CountFiles(ctx, s.folders(), s.relevantFile, rep)
		if err != nil {
			return err
		}
		rep.SetTotal(len(files))
		if len(files) == 0 {
			rep.Log(events.LevelInfo, "Scan complete: library has no audio files", nil)
			return nil
		}

		var added, updated, skipped, failed int
		poolErr := workerpool.Run(ctx, s.cfg.Scanner.Workers, files,
			func(ctx context.Context, path string) scanResult {
				return s.scanFile(ctx, path, force)
			},
			func(res scanResult) {
				switch res.outcome {
				case outcomeAdded:
					added++
				case outcomeUpdated:
					updated++
				case outcomeSkipped:
					skipped++
				case outcomeFailed:
					failed++
					rep.Log(events.LevelWarn,
						fmt.Sprintf("Skipping %s: %v", res.path, res.err),
						map[string]string{"path": res.path})
				}
				rep.Advance(map[string]string{"path": res.path})
			})
		if poolErr != nil {
			return poolErr
		}

		rep.Log(events.LevelInfo,
			fmt.Sprintf("Scan complete: %d added, %d updated, %d skipped, %d failed", added, updated, skipped, failed),
			map[string]string{
				"added":   fmt.Sprintf("%d", added),
				"updated": fmt.Sprintf("%d", updated),
				"skipped": fmt.Sprintf("%d", skipped),
				"failed":  fmt.Sprintf("%d", failed),
			})
		return nil
	}
}

// relevantFile adapts the configured extension check to the full paths the
// counter walk hands out.
func (s *Scanner) relevantFile(path string) bool {
	return s.cfg.IsSupportedExtension(filepath.Ext(path))
}

// folders lists the library's top-level folders so the counter can report per
// folder. Loose files directly under the root are covered by including the
// root itself when no subfolders exist.
func (s *Scanner) folders() []string {
	root := s.cfg.Paths.LibraryDir
	entries, err := os.ReadDir(root)
	if err != nil {
		return []string{root}
	}
	var folders []string
	looseFiles := false
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, root+string(os.PathSeparator)+entry.Name())
		} else if s.cfg.IsSupportedExtension(filepath.Ext(entry.Name())) {
			looseFiles = true
		}
	}
	if len(folders) == 0 || looseFiles {
		return []string{root}
	}
	return folders
}

func (s *Scanner) scanFile(ctx context.Context, path string, force bool) scanResult {
	info, err := os.Stat(path)
	if err != nil {
		return scanResult{path: path, outcome: outcomeFailed, err: err}
	}

	existing, err := s.catalog.GetByPath(ctx, path)
	if err != nil {
		return scanResult{path: path, outcome: outcomeFailed, err: err}
	}
	if existing != nil && !force && unchanged(existing, info) {
		return scanResult{path: path, outcome: outcomeSkipped}
	}

	book := Probe(s.cfg.Paths.LibraryDir, path, info)
	if existing != nil {
		// A rescan refreshes stat data without clobbering fetched metadata.
		if existing.Author != "" {
			book.Author = existing.Author
		}
		if existing.Series != "" {
			book.Series = existing.Series
		}
		book.CreatedAt = existing.CreatedAt
	}
	if err := s.catalog.Upsert(ctx, book); err != nil {
		return scanResult{path: path, outcome: outcomeFailed, err: err}
	}
	if existing != nil {
		return scanResult{path: path, outcome: outcomeUpdated}
	}
	return scanResult{path: path, outcome: outcomeAdded}
}

func unchanged(book *catalog.Book, info os.FileInfo) bool {
	if book.SizeBytes != info.Size() {
		return false
	}
	return book.ModifiedAt != nil && book.ModifiedAt.Equal(info.ModTime().UTC())
}
