package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"shelf/internal/catalog"
	"shelf/internal/config"
	"shelf/internal/events"
	"shelf/internal/importer"
	"shelf/internal/logging"
	"shelf/internal/lookup"
	"shelf/internal/notifications"
	"shelf/internal/operations"
	"shelf/internal/oplog"
	"shelf/internal/organizer"
	"shelf/internal/scanner"
	"shelf/internal/server"
)

// Daemon wires the pipeline together and enforces single-instance execution:
// stores, event hub, progress sink, scheduler, runners, HTTP API.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	opStore  *operations.Store
	catalog  *catalog.Store
	journals *oplog.JournalStore
	hub      *events.Hub
	sink     *oplog.Sink
	sched    *operations.Scheduler
	api      *server.Server
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with all collaborators initialized but nothing
// started.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	opStore, err := operations.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open operations store: %w", err)
	}
	books, err := catalog.Open(cfg)
	if err != nil {
		_ = opStore.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	journals, err := oplog.NewJournalStore(cfg.OperationLogDir())
	if err != nil {
		_ = books.Close()
		_ = opStore.Close()
		return nil, err
	}

	hub := events.NewHub(cfg.Stream.SubscriberBuffer)
	sink := oplog.NewSink(journals, hub, logger)
	sched := operations.NewScheduler(opStore, sink, hub, logger, cfg.Operations.MaxPending)
	notifier := notifications.NewService(cfg)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		opStore:  opStore,
		catalog:  books,
		journals: journals,
		hub:      hub,
		sink:     sink,
		sched:    sched,
		notifier: notifier,
		lockPath: filepath.Join(cfg.Paths.LogDir, "shelfd.lock"),
	}
	d.lock = flock.New(d.lockPath)
	sched.SetCompletionHook(d.onOperationDone)

	scan := scanner.New(cfg, books, logger)
	org := organizer.New(cfg, books, logger)
	imp := importer.New(cfg, books, logger)
	fetch := lookup.NewFetcher(cfg, books, lookup.NewClient(cfg), logger)

	runners := server.Runners{
		Scan:          scan.Work,
		Organize:      org.Work,
		Import:        imp.Work,
		MetadataFetch: fetch.Work,
	}
	d.api = server.New(cfg, sched, hub, runners, d, logger)
	return d, nil
}

// Start acquires the instance lock, prunes old journals, and launches the
// scheduler and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shelf daemon instance is already running")
	}

	if retention := d.cfg.Operations.LogRetentionDays; retention > 0 {
		removed, err := d.journals.Prune(time.Duration(retention) * 24 * time.Hour)
		if err != nil {
			d.logger.Warn("journal prune failed", logging.Error(err))
		} else if removed > 0 {
			d.logger.Info("pruned old operation journals", logging.Int("removed", removed))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.sched.Start(runCtx)
	if err := d.api.Start(runCtx); err != nil {
		d.sched.Stop()
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("shelf daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.Addr()))
	return nil
}

// Stop shuts down the API server and scheduler and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.Stop()
	d.sched.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("shelf daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var firstErr error
	if err := d.journals.Close(); err != nil {
		firstErr = err
	}
	if err := d.catalog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.opStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// APIAddr returns the bound API address, or "" before Start.
func (d *Daemon) APIAddr() string {
	return d.api.Addr()
}

// Status reports daemon process state for the API.
func (d *Daemon) Status(ctx context.Context) server.StatusSnapshot {
	return server.StatusSnapshot{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		OperationsDB: d.opStore.Path(),
		LockFilePath: d.lockPath,
	}
}

// onOperationDone pushes a notification for each terminal operation. Delivery
// happens off the runner goroutine so a slow notifier never stalls the lane.
func (d *Daemon) onOperationDone(op *operations.Operation) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var err error
		switch op.Status {
		case operations.StatusCompleted:
			err = d.notifier.NotifyOperationCompleted(ctx, string(op.Type), op.Message)
		case operations.StatusFailed:
			err = d.notifier.NotifyOperationFailed(ctx, string(op.Type), op.Error)
		case operations.StatusCanceled:
			err = d.notifier.NotifyOperationCanceled(ctx, string(op.Type))
		}
		if err != nil {
			d.logger.Warn("notification failed",
				logging.String(logging.FieldOperationID, op.ID), logging.Error(err))
		}
	}()
}
