package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"shelf/internal/catalog"
	"shelf/internal/config"
	"shelf/internal/events"
	"shelf/internal/logging"
	"shelf/internal/operations"
	"shelf/internal/services"
	"shelf/internal/workerpool"
)

// Fetcher fills missing authors in the catalog from an external metadata
// provider.
type Fetcher struct {
	cfg      *config.Config
	catalog  *catalog.Store
	provider Provider
	logger   *slog.Logger
}

// NewFetcher builds a metadata fetcher over the given catalog and provider.
func NewFetcher(cfg *config.Config, store *catalog.Store, provider Provider, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		cfg:      cfg,
		catalog:  store,
		provider: provider,
		logger:   logging.WithComponent(logger, "lookup"),
	}
}

type fetchResult struct {
	book   *catalog.Book
	result *Result
	err    error
}

// Work returns the metadata_fetch operation closure. The total is the number
// of catalog entries with no recorded author; each counts once whether the
// lookup hit, missed, or failed.
func (f *Fetcher) Work() operations.Work {
	return func(ctx context.Context, rep *operations.Reporter) error {
		if !f.cfg.Lookup.Enabled {
			return services.Wrap(services.ErrConfiguration, "lookup", "metadata_fetch",
				"metadata lookup is disabled in config", nil)
		}

		books, err := f.catalog.MissingAuthor(ctx)
		if err != nil {
			return fmt.Errorf("list books missing author: %w", err)
		}
		rep.SetTotal(len(books))
		rep.Log(events.LevelInfo,
			fmt.Sprintf("Fetching metadata for %d books", len(books)),
			map[string]string{"total": fmt.Sprintf("%d", len(books))})
		if len(books) == 0 {
			rep.Log(events.LevelInfo, "Metadata fetch complete: no books missing authors", nil)
			return nil
		}

		var updated, misses, failed int
		poolErr := workerpool.Run(ctx, f.cfg.Scanner.Workers, books,
			func(ctx context.Context, book *catalog.Book) fetchResult {
				result, err := f.provider.Lookup(ctx, book.Title)
				return fetchResult{book: book, result: result, err: err}
			},
			func(res fetchResult) {
				switch {
				case errors.Is(res.err, services.ErrNotFound):
					misses++
					rep.Log(events.LevelInfo,
						fmt.Sprintf("No match for %q", res.book.Title),
						map[string]string{"title": res.book.Title})
				case res.err != nil:
					failed++
					rep.Log(events.LevelWarn,
						fmt.Sprintf("Lookup failed for %q: %v", res.book.Title, res.err),
						map[string]string{"title": res.book.Title})
				case res.result.Author == "":
					misses++
					rep.Log(events.LevelInfo,
						fmt.Sprintf("Match for %q has no author", res.book.Title),
						map[string]string{"title": res.book.Title})
				default:
					updated++
					res.book.Author = res.result.Author
					if err := f.catalog.Upsert(ctx, res.book); err != nil {
						f.logger.Warn("catalog upsert failed",
							logging.String("path", res.book.Path), logging.Error(err))
					}
				}
				rep.Advance(map[string]string{"title": res.book.Title})
			})
		if poolErr != nil {
			return poolErr
		}

		rep.Log(events.LevelInfo,
			fmt.Sprintf("Metadata fetch complete: %d updated, %d without match, %d failed", updated, misses, failed),
			map[string]string{
				"updated": fmt.Sprintf("%d", updated),
				"misses":  fmt.Sprintf("%d", misses),
				"failed":  fmt.Sprintf("%d", failed),
			})
		return nil
	}
}
