package importer_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shelf/internal/catalog"
	"shelf/internal/config"
	"shelf/internal/importer"
	"shelf/internal/logging"
	"shelf/internal/operations"
	"shelf/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	catalog *catalog.Store
	sched   *operations.Scheduler
	store   *operations.Store
}

func newFixture(t *testing.T) *fixture {
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
	return &fixture{cfg: cfg, catalog: books, sched: sched, store: opStore}
}

func (f *fixture) runImport(t *testing.T) *operations.Operation {
	t.Helper()

	im := importer.New(f.cfg, f.catalog, logging.NewNop())
	op, err := f.sched.Submit(context.Background(), operations.TypeImport, im.Work())
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
	t.Fatal("import never finished")
	return nil
}

func TestImportMovesAndCatalogsFiles(t *testing.T) {
	f := newFixture(t)
	importDir := f.cfg.Paths.ImportDirs[0]

	testsupport.WriteFile(t, filepath.Join(importDir, "le guin", "a wizard of earthsea.m4b"), 64)
	testsupport.WriteFile(t, filepath.Join(importDir, "loose track.mp3"), 64)
	testsupport.WriteFile(t, filepath.Join(importDir, "readme.txt"), 16)

	op := f.runImport(t)
	if op.Status != operations.StatusCompleted {
		t.Fatalf("status = %s (%s)", op.Status, op.Error)
	}
	if op.Total != 2 || op.Progress != 2 {
		t.Fatalf("progress/total = %d/%d, want 2/2", op.Progress, op.Total)
	}
	if !strings.Contains(op.Message, "2 imported") {
		t.Fatalf("completion message = %q", op.Message)
	}

	organized := filepath.Join(f.cfg.Paths.LibraryDir, "Le Guin", "A Wizard Of Earthsea.m4b")
	if _, err := os.Stat(organized); err != nil {
		t.Fatalf("imported file not in library layout: %v", err)
	}
	entry, err := f.catalog.GetByPath(context.Background(), organized)
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if entry == nil || entry.Author != "le guin" {
		t.Fatalf("catalog entry = %+v", entry)
	}

	count, _ := f.catalog.Count(context.Background())
	if count != 2 {
		t.Fatalf("catalog count = %d, want 2", count)
	}
}

func TestImportSkipsDuplicates(t *testing.T) {
	f := newFixture(t)
	importDir := f.cfg.Paths.ImportDirs[0]

	testsupport.WriteFile(t, filepath.Join(importDir, "herbert", "dune.m4b"), 64)
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.LibraryDir, "Herbert", "Dune.m4b"), 64)

	op := f.runImport(t)
	if !strings.Contains(op.Message, "1 skipped") {
		t.Fatalf("completion message = %q", op.Message)
	}
	if _, err := os.Stat(filepath.Join(importDir, "herbert", "dune.m4b")); err != nil {
		t.Fatalf("duplicate source should stay in the import folder: %v", err)
	}
}

func TestImportEmptyFolders(t *testing.T) {
	f := newFixture(t)

	op := f.runImport(t)
	if op.Status != operations.StatusCompleted {
		t.Fatalf("status = %s", op.Status)
	}
	if op.Message != "Import complete: nothing to import" {
		t.Fatalf("completion message = %q", op.Message)
	}
}

func TestImportMissingFolderWarnsAndCompletes(t *testing.T) {
	f := newFixture(t)
	good := f.cfg.Paths.ImportDirs[0]
	f.cfg.Paths.ImportDirs = append(f.cfg.Paths.ImportDirs, filepath.Join(good, "..", "never-created"))
	testsupport.WriteFile(t, filepath.Join(good, "solo.m4b"), 64)

	op := f.runImport(t)
	if op.Status != operations.StatusCompleted {
		t.Fatalf("status = %s (%s)", op.Status, op.Error)
	}
	if !strings.Contains(op.Message, "1 imported") {
		t.Fatalf("completion message = %q", op.Message)
	}
}
