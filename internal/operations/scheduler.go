package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"shelf/internal/events"
	"shelf/internal/logging"
	"shelf/internal/oplog"
)

// Work is the closure a submitted operation runs once the scheduler picks it
// up. Implementations must honor ctx cancellation between items and report
// progress through the reporter.
type Work func(ctx context.Context, rep *Reporter) error

// CompletionHook observes every operation as it reaches a terminal status.
type CompletionHook func(op *Operation)

// Scheduler admits operations into a bounded FIFO queue and executes them one
// at a time on a single runner goroutine. Strict serialization is the point:
// at most one operation is ever processing, and queue order is execution
// order.
type Scheduler struct {
	store  *Store
	sink   *oplog.Sink
	hub    *events.Hub
	logger *slog.Logger
	hook   CompletionHook

	maxPending int

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*pendingOp
	current *runningOp
	stopped bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type pendingOp struct {
	id     string
	opType Type
	work   Work
}

type runningOp struct {
	id       string
	cancel   context.CancelFunc
	canceled bool
}

// NewScheduler builds a scheduler over the given store, sink, and hub.
// maxPending bounds the number of queued (not yet running) operations.
func NewScheduler(store *Store, sink *oplog.Sink, hub *events.Hub, logger *slog.Logger, maxPending int) *Scheduler {
	if maxPending <= 0 {
		maxPending = 1
	}
	s := &Scheduler{
		store:      store,
		sink:       sink,
		hub:        hub,
		logger:     logging.WithComponent(logger, "scheduler"),
		maxPending: maxPending,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetCompletionHook registers a hook invoked after each operation reaches a
// terminal status. It must be set before Start.
func (s *Scheduler) SetCompletionHook(hook CompletionHook) {
	s.hook = hook
}

// Start launches the runner goroutine. The scheduler stops when Stop is
// called or ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.runLoop()
}

// Stop refuses further submissions, cancels the running operation, and waits
// for the runner goroutine to exit. Queued operations that never ran keep
// their queued status in the store.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.stopped = true
	if s.current != nil {
		s.current.canceled = true
		s.current.cancel()
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Submit admits a new operation of the given type. Submission never blocks:
// when the pending queue is at capacity it fails with ErrQueueFull. The
// returned record reflects the freshly persisted queued operation.
func (s *Scheduler) Submit(ctx context.Context, opType Type, work Work) (*Operation, error) {
	if _, ok := ParseType(string(opType)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, opType)
	}
	if work == nil {
		return nil, errors.New("work closure is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrSchedulerStopped
	}
	if len(s.pending) >= s.maxPending {
		return nil, ErrQueueFull
	}

	op := &Operation{
		ID:     uuid.NewString(),
		Type:   opType,
		Status: StatusQueued,
	}
	op.LogPath = s.sink.JournalPath(op.ID)
	if err := s.store.Create(ctx, op); err != nil {
		return nil, err
	}

	s.pending = append(s.pending, &pendingOp{id: op.ID, opType: opType, work: work})
	s.cond.Signal()

	s.logger.Info("operation queued",
		logging.String(logging.FieldOperationID, op.ID),
		logging.String(logging.FieldOpType, string(opType)),
		logging.Int("pending", len(s.pending)))
	return op, nil
}

// Cancel requests cancellation of an operation. A queued operation goes
// straight to canceled without ever running; a processing operation has its
// context canceled and finishes cooperatively. Terminal operations yield
// ErrAlreadyTerminal.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	for i, p := range s.pending {
		if p.id != id {
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		s.mu.Unlock()
		return s.cancelQueued(ctx, id, p.opType)
	}
	if s.current != nil && s.current.id == id {
		s.current.canceled = true
		s.current.cancel()
		s.mu.Unlock()
		s.sink.Log(id, events.LevelInfo, "cancellation requested", nil)
		s.logger.Info("cancellation requested", logging.String(logging.FieldOperationID, id))
		return nil
	}
	s.mu.Unlock()

	op, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if op == nil {
		return fmt.Errorf("operation %s: %w", id, ErrOperationNotFound)
	}
	if op.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	// The operation moved between queue and runner while we looked. Treat the
	// request as delivered; the runner observes the flag on its next pickup.
	s.mu.Lock()
	if s.current != nil && s.current.id == id {
		s.current.canceled = true
		s.current.cancel()
	}
	s.mu.Unlock()
	return nil
}

// Get fetches one operation record by id.
func (s *Scheduler) Get(ctx context.Context, id string) (*Operation, error) {
	op, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, fmt.Errorf("operation %s: %w", id, ErrOperationNotFound)
	}
	return op, nil
}

// List returns operations filtered by status, oldest first.
func (s *Scheduler) List(ctx context.Context, statuses ...Status) ([]*Operation, error) {
	return s.store.List(ctx, statuses...)
}

// Stats returns a count of operations grouped by status.
func (s *Scheduler) Stats(ctx context.Context) (map[Status]int, error) {
	return s.store.Stats(ctx)
}

// PendingCount returns the number of queued submissions not yet picked up.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) cancelQueued(ctx context.Context, id string, opType Type) error {
	if err := s.store.MarkCanceled(ctx, id); err != nil {
		return err
	}
	s.sink.Log(id, events.LevelInfo, "operation canceled", map[string]string{"status": string(StatusCanceled)})
	s.hub.Close(id)
	s.sink.Release(id)
	s.logger.Info("queued operation canceled",
		logging.String(logging.FieldOperationID, id),
		logging.String(logging.FieldOpType, string(opType)))
	s.notifyTerminal(id)
	return nil
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		opCtx, cancelOp := context.WithCancel(s.baseCtx)
		run := &runningOp{id: next.id, cancel: cancelOp}
		s.current = run
		s.mu.Unlock()

		s.execute(opCtx, next, run)
		cancelOp()

		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}
}

func (s *Scheduler) execute(ctx context.Context, p *pendingOp, run *runningOp) {
	logger := logging.WithOperation(s.logger, p.id, string(p.opType))

	if err := s.store.MarkProcessing(context.Background(), p.id); err != nil {
		logger.Error("mark processing failed", logging.Error(err))
		return
	}
	logger.Info("operation started")
	s.sink.Log(p.id, events.LevelInfo, "operation started", map[string]string{"type": string(p.opType)})

	rep := newReporter(ctx, p.id, s.store, s.sink, s.logger)
	err := runWork(ctx, p.work, rep)

	s.mu.Lock()
	canceled := run.canceled
	s.mu.Unlock()
	if errors.Is(err, context.Canceled) {
		canceled = true
	}

	switch {
	case canceled:
		if markErr := s.store.MarkCanceled(context.Background(), p.id); markErr != nil {
			logger.Error("mark canceled failed", logging.Error(markErr))
		}
		s.sink.Log(p.id, events.LevelInfo, "operation canceled", map[string]string{"status": string(StatusCanceled)})
		logger.Info("operation canceled")
	case err != nil:
		if markErr := s.store.MarkFailed(context.Background(), p.id, err.Error()); markErr != nil {
			logger.Error("mark failed failed", logging.Error(markErr))
		}
		s.sink.Log(p.id, events.LevelError, "operation failed: "+err.Error(), map[string]string{"status": string(StatusFailed)})
		logger.Error("operation failed", logging.Error(err))
	default:
		message := rep.completionMessage()
		if markErr := s.store.MarkCompleted(context.Background(), p.id, message); markErr != nil {
			logger.Error("mark completed failed", logging.Error(markErr))
		}
		s.sink.Log(p.id, events.LevelInfo, message, map[string]string{"status": string(StatusCompleted)})
		logger.Info("operation completed", logging.String("message", message))
	}

	s.hub.Close(p.id)
	s.sink.Release(p.id)
	s.notifyTerminal(p.id)
}

// runWork isolates panics from the closure so a misbehaving collaborator
// fails its operation instead of taking the daemon down.
func runWork(ctx context.Context, work Work, rep *Reporter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return work(ctx, rep)
}

func (s *Scheduler) notifyTerminal(id string) {
	if s.hook == nil {
		return
	}
	op, err := s.store.Get(context.Background(), id)
	if err != nil || op == nil {
		return
	}
	s.hook(op)
}
