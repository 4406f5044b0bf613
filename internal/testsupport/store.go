package testsupport

import (
	"testing"

	"shelf/internal/config"
	"shelf/internal/events"
	"shelf/internal/logging"
	"shelf/internal/operations"
	"shelf/internal/oplog"
)

// MustOpenStore opens an operations.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *operations.Store {
	t.Helper()

	store, err := operations.Open(cfg)
	if err != nil {
		t.Fatalf("operations.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSink builds a journal-backed progress sink wired to a fresh hub, both
// rooted in the test config's log directory.
func NewSink(t testing.TB, cfg *config.Config) (*oplog.Sink, *events.Hub) {
	t.Helper()

	journals, err := oplog.NewJournalStore(cfg.OperationLogDir())
	if err != nil {
		t.Fatalf("oplog.NewJournalStore: %v", err)
	}
	t.Cleanup(func() {
		journals.Close()
	})
	hub := events.NewHub(cfg.Stream.SubscriberBuffer)
	return oplog.NewSink(journals, hub, logging.NewNop()), hub
}
