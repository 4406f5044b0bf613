package organizer

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"shelf/internal/catalog"
	"shelf/internal/config"
	"shelf/internal/events"
	"shelf/internal/fileutil"
	"shelf/internal/logging"
	"shelf/internal/operations"
	"shelf/internal/workerpool"
)

// Organizer moves cataloged files into their canonical Author/Title layout
// under the library root and rewrites the catalog keys to match.
type Organizer struct {
	cfg     *config.Config
	catalog *catalog.Store
	logger  *slog.Logger
}

// New builds an organizer over the given catalog store.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Organizer {
	return &Organizer{
		cfg:     cfg,
		catalog: store,
		logger:  logging.WithComponent(logger, "organizer"),
	}
}

type organizeOutcome int

const (
	outcomeMoved organizeOutcome = iota
	outcomeInPlace
	outcomeConflict
	outcomeFailed
)

type organizeResult struct {
	book    *catalog.Book
	target  string
	outcome organizeOutcome
	err     error
}

// Work returns the organize operation closure. The total is the number of
// cataloged books; each book counts once whether it moved, was already in
// place, or failed.
func (o *Organizer) Work() operations.Work {
	return func(ctx context.Context, rep *operations.Reporter) error {
		books, err := o.catalog.List(ctx)
		if err != nil {
			return fmt.Errorf("list catalog: %w", err)
		}
		rep.SetTotal(len(books))
		rep.Log(events.LevelInfo,
			fmt.Sprintf("Organizing %d books", len(books)),
			map[string]string{"total": fmt.Sprintf("%d", len(books))})
		if len(books) == 0 {
			rep.Log(events.LevelInfo, "Organize complete: catalog is empty", nil)
			return nil
		}

		var moved, inPlace, conflicts, failed int
		poolErr := workerpool.Run(ctx, o.cfg.Scanner.Workers, books,
			func(ctx context.Context, book *catalog.Book) organizeResult {
				return o.organizeBook(book)
			},
			func(res organizeResult) {
				switch res.outcome {
				case outcomeMoved:
					moved++
					// Catalog rewrite happens on the collector goroutine so
					// the pool workers never contend on the store.
					if err := o.catalog.SetPath(ctx, res.book.Path, res.target); err != nil {
						o.logger.Warn("catalog path rewrite failed",
							logging.String("path", res.book.Path), logging.Error(err))
					}
					rep.Log(events.LevelInfo,
						fmt.Sprintf("Moved %s -> %s", res.book.Path, res.target),
						map[string]string{"from": res.book.Path, "to": res.target})
				case outcomeInPlace:
					inPlace++
				case outcomeConflict:
					conflicts++
					rep.Log(events.LevelWarn,
						fmt.Sprintf("Skipping %s: target %s already exists", res.book.Path, res.target),
						map[string]string{"path": res.book.Path, "target": res.target})
				case outcomeFailed:
					failed++
					rep.Log(events.LevelWarn,
						fmt.Sprintf("Skipping %s: %v", res.book.Path, res.err),
						map[string]string{"path": res.book.Path})
				}
				rep.Advance(map[string]string{"path": res.book.Path})
			})
		if poolErr != nil {
			return poolErr
		}

		rep.Log(events.LevelInfo,
			fmt.Sprintf("Organize complete: %d moved, %d already in place, %d conflicts, %d failed",
				moved, inPlace, conflicts, failed),
			map[string]string{
				"moved":    fmt.Sprintf("%d", moved),
				"in_place": fmt.Sprintf("%d", inPlace),
				"conflict": fmt.Sprintf("%d", conflicts),
				"failed":   fmt.Sprintf("%d", failed),
			})
		return nil
	}
}

func (o *Organizer) organizeBook(book *catalog.Book) organizeResult {
	target := TargetPath(o.cfg.Paths.LibraryDir, book)
	if book.Path == target {
		return organizeResult{book: book, target: target, outcome: outcomeInPlace}
	}
	if _, err := os.Stat(target); err == nil {
		return organizeResult{book: book, target: target, outcome: outcomeConflict}
	}
	if err := fileutil.MoveFile(book.Path, target); err != nil {
		return organizeResult{book: book, target: target, outcome: outcomeFailed, err: err}
	}
	return organizeResult{book: book, target: target, outcome: outcomeMoved}
}
