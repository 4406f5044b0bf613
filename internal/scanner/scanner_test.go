package scanner_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shelf/internal/catalog"
	"shelf/internal/config"
	"shelf/internal/logging"
	"shelf/internal/operations"
	"shelf/internal/scanner"
	"shelf/internal/testsupport"
)

type scanFixture struct {
	cfg     *config.Config
	catalog *catalog.Store
	sched   *operations.Scheduler
	store   *operations.Store
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
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
	return &scanFixture{cfg: cfg, catalog: books, sched: sched, store: opStore}
}

func (f *scanFixture) runScan(t *testing.T, force bool) *operations.Operation {
	t.Helper()

	s := scanner.New(f.cfg, f.catalog, logging.NewNop())
	op, err := f.sched.Submit(context.Background(), operations.TypeScan, s.Work(force))
	if err != nil {
		t.Fatalf("Submit scan: %v", err)
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
	t.Fatal("scan never finished")
	return nil
}

func TestScanCatalogsLibrary(t *testing.T) {
	f := newScanFixture(t)
	lib := f.cfg.Paths.LibraryDir
	testsupport.WriteFile(t, filepath.Join(lib, "Le Guin", "A Wizard of Earthsea.m4b"), 128)
	testsupport.WriteFile(t, filepath.Join(lib, "Le Guin", "Earthsea", "The Tombs of Atuan.m4b"), 128)
	testsupport.WriteFile(t, filepath.Join(lib, "Herbert", "Dune.mp3"), 128)
	testsupport.WriteFile(t, filepath.Join(lib, "Herbert", "cover.jpg"), 16)

	op := f.runScan(t, false)
	if op.Status != operations.StatusCompleted {
		t.Fatalf("status = %s (%s)", op.Status, op.Error)
	}
	if op.Total != 3 || op.Progress != 3 {
		t.Fatalf("progress/total = %d/%d, want 3/3", op.Progress, op.Total)
	}
	if !strings.HasPrefix(op.Message, "Scan complete: 3 added") {
		t.Fatalf("completion message = %q", op.Message)
	}

	books, err := f.catalog.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(books) != 3 {
		t.Fatalf("cataloged books = %d, want 3", len(books))
	}

	tombs, err := f.catalog.GetByPath(context.Background(), filepath.Join(lib, "Le Guin", "Earthsea", "The Tombs of Atuan.m4b"))
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if tombs == nil {
		t.Fatal("nested book not cataloged")
	}
	if tombs.Author != "Le Guin" || tombs.Series != "Earthsea" || tombs.Title != "The Tombs of Atuan" {
		t.Fatalf("probe mismatch: %+v", tombs)
	}
}

func TestScanMatchesConfiguredExtensions(t *testing.T) {
	f := newScanFixture(t)
	lib := f.cfg.Paths.LibraryDir
	testsupport.WriteFile(t, filepath.Join(lib, "Author", "Book.m4b"), 64)
	testsupport.WriteFile(t, filepath.Join(lib, "Author", "Book.nfo"), 16)
	testsupport.WriteFile(t, filepath.Join(lib, "standalone.mp3"), 64)

	op := f.runScan(t, false)
	if op.Status != operations.StatusCompleted {
		t.Fatalf("status = %s (%s)", op.Status, op.Error)
	}
	if op.Total != 2 || op.Progress != 2 {
		t.Fatalf("progress/total = %d/%d, want 2/2 (audio files only, loose root file included)", op.Progress, op.Total)
	}

	count, err := f.catalog.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("cataloged books = %d, want 2", count)
	}
}

func TestRescanSkipsUnchangedFiles(t *testing.T) {
	f := newScanFixture(t)
	lib := f.cfg.Paths.LibraryDir
	testsupport.WriteFile(t, filepath.Join(lib, "Author", "Book.m4b"), 64)

	first := f.runScan(t, false)
	if !strings.HasPrefix(first.Message, "Scan complete: 1 added") {
		t.Fatalf("first scan message = %q", first.Message)
	}

	second := f.runScan(t, false)
	if !strings.Contains(second.Message, "1 skipped") {
		t.Fatalf("second scan message = %q, want unchanged file skipped", second.Message)
	}

	forced := f.runScan(t, true)
	if !strings.Contains(forced.Message, "1 updated") {
		t.Fatalf("forced scan message = %q, want file re-probed", forced.Message)
	}
}

func TestRescanPreservesFetchedMetadata(t *testing.T) {
	f := newScanFixture(t)
	lib := f.cfg.Paths.LibraryDir
	path := filepath.Join(lib, "some-book.m4b")
	testsupport.WriteFile(t, path, 64)

	f.runScan(t, false)

	// Simulate a later metadata fetch filling in the author.
	book, _ := f.catalog.GetByPath(context.Background(), path)
	book.Author = "Fetched Author"
	if err := f.catalog.Upsert(context.Background(), book); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	f.runScan(t, true)
	got, _ := f.catalog.GetByPath(context.Background(), path)
	if got.Author != "Fetched Author" {
		t.Fatalf("author = %q, forced rescan clobbered fetched metadata", got.Author)
	}
}

func TestScanEmptyLibraryCompletes(t *testing.T) {
	f := newScanFixture(t)

	op := f.runScan(t, false)
	if op.Status != operations.StatusCompleted {
		t.Fatalf("status = %s", op.Status)
	}
	if op.Total != 0 || op.Progress != 0 {
		t.Fatalf("progress/total = %d/%d, want 0/0", op.Progress, op.Total)
	}
}
