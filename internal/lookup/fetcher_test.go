package lookup_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"shelf/internal/catalog"
	"shelf/internal/config"
	"shelf/internal/logging"
	"shelf/internal/lookup"
	"shelf/internal/operations"
	"shelf/internal/services"
	"shelf/internal/testsupport"
)

type fakeProvider struct {
	authors map[string]string
	fail    map[string]bool
}

func (f *fakeProvider) Lookup(ctx context.Context, title string) (*lookup.Result, error) {
	if f.fail[title] {
		return nil, services.Wrap(services.ErrTransient, "lookup", "search", title, nil)
	}
	author, ok := f.authors[title]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "lookup", "search", title, nil)
	}
	return &lookup.Result{Title: title, Author: author}, nil
}

type fetchFixture struct {
	cfg     *config.Config
	catalog *catalog.Store
	sched   *operations.Scheduler
	store   *operations.Store
}

func newFetchFixture(t *testing.T) *fetchFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Lookup.Enabled = true
	opStore := testsupport.MustOpenStore(t, cfg)
	sink, hub := testsupport.NewSink(t, cfg)
	books, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		books.Close()
	})

	sched := operations.NewScheduler(opStore, sink, hub, logging.NewNop(), 8)
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)
	return &fetchFixture{cfg: cfg, catalog: books, sched: sched, store: opStore}
}

func (f *fetchFixture) runFetch(t *testing.T, provider lookup.Provider) *operations.Operation {
	t.Helper()

	fetcher := lookup.NewFetcher(f.cfg, f.catalog, provider, logging.NewNop())
	op, err := f.sched.Submit(context.Background(), operations.TypeMetadataFetch, fetcher.Work())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := f.store.Get(context.Background(), op.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status.IsTerminal() {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("fetch never finished")
	return nil
}

func TestFetchFillsMissingAuthors(t *testing.T) {
	f := newFetchFixture(t)
	ctx := context.Background()

	seed := []*catalog.Book{
		{Path: "/l/earthsea.m4b", Title: "A Wizard of Earthsea", Extension: ".m4b"},
		{Path: "/l/dune.m4b", Title: "Dune", Extension: ".m4b"},
		{Path: "/l/known.m4b", Title: "Known", Author: "Already Set", Extension: ".m4b"},
		{Path: "/l/obscure.m4b", Title: "Obscure", Extension: ".m4b"},
	}
	for _, b := range seed {
		if err := f.catalog.Upsert(ctx, b); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	provider := &fakeProvider{authors: map[string]string{
		"A Wizard of Earthsea": "Ursula K. Le Guin",
		"Dune":                 "Frank Herbert",
	}}
	op := f.runFetch(t, provider)
	if op.Status != operations.StatusCompleted {
		t.Fatalf("status = %s (%s)", op.Status, op.Error)
	}
	// Only the three authorless books count toward the total.
	if op.Total != 3 || op.Progress != 3 {
		t.Fatalf("progress/total = %d/%d, want 3/3", op.Progress, op.Total)
	}
	if !strings.Contains(op.Message, "2 updated, 1 without match") {
		t.Fatalf("completion message = %q", op.Message)
	}

	earthsea, _ := f.catalog.GetByPath(ctx, "/l/earthsea.m4b")
	if earthsea.Author != "Ursula K. Le Guin" {
		t.Fatalf("author = %q", earthsea.Author)
	}
	known, _ := f.catalog.GetByPath(ctx, "/l/known.m4b")
	if known.Author != "Already Set" {
		t.Fatalf("existing author clobbered: %q", known.Author)
	}
}

func TestFetchCountsProviderFailures(t *testing.T) {
	f := newFetchFixture(t)
	ctx := context.Background()

	if err := f.catalog.Upsert(ctx, &catalog.Book{Path: "/l/flaky.m4b", Title: "Flaky", Extension: ".m4b"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	provider := &fakeProvider{fail: map[string]bool{"Flaky": true}}
	op := f.runFetch(t, provider)
	if op.Status != operations.StatusCompleted {
		t.Fatalf("status = %s (item failures never fail the operation)", op.Status)
	}
	if !strings.Contains(op.Message, "1 failed") {
		t.Fatalf("completion message = %q", op.Message)
	}
}

func TestFetchFailsWhenDisabled(t *testing.T) {
	f := newFetchFixture(t)
	f.cfg.Lookup.Enabled = false

	op := f.runFetch(t, &fakeProvider{})
	if op.Status != operations.StatusFailed {
		t.Fatalf("status = %s, want failed", op.Status)
	}
	if !strings.Contains(op.Error, "disabled") {
		t.Fatalf("error = %q", op.Error)
	}
}
