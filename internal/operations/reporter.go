package operations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"shelf/internal/events"
	"shelf/internal/logging"
	"shelf/internal/oplog"
)

// Reporter is the progress surface handed to a running operation's closure.
// It owns the operation's monotonic progress counter: increments are
// serialized here, so the emitted sequence is always 1, 2, ..., total no
// matter which worker finished the corresponding item. Reporter methods never
// fail the caller's flow; persistence problems surface in the process log.
type Reporter struct {
	ctx    context.Context
	opID   string
	store  *Store
	sink   *oplog.Sink
	logger *slog.Logger

	mu          sync.Mutex
	progress    int
	total       int
	lastMessage string
}

func newReporter(ctx context.Context, opID string, store *Store, sink *oplog.Sink, logger *slog.Logger) *Reporter {
	return &Reporter{
		ctx:    ctx,
		opID:   opID,
		store:  store,
		sink:   sink,
		logger: logging.WithComponent(logger, "reporter"),
	}
}

// OperationID returns the id of the operation being reported on.
func (r *Reporter) OperationID() string { return r.opID }

// Context returns the operation's cancellation context. Closures must check
// it between blocking calls; cancellation is cooperative.
func (r *Reporter) Context() context.Context { return r.ctx }

// Canceled reports whether cancellation has been requested.
func (r *Reporter) Canceled() bool { return r.ctx.Err() != nil }

// SetTotal commits the operation's item total. The first call wins; the total
// never changes once pre-counting has finished.
func (r *Reporter) SetTotal(total int) {
	if total < 0 {
		total = 0
	}
	r.mu.Lock()
	if r.total == 0 {
		r.total = total
	}
	committed := r.total
	r.mu.Unlock()

	if err := r.store.SetTotal(context.Background(), r.opID, committed); err != nil {
		r.logger.Warn("persist total failed", logging.String(logging.FieldOperationID, r.opID), logging.Error(err))
	}
}

// Advance counts one finished item (success or failure) and emits the
// "Processed: <n>/<total>" event. It returns the new progress value.
func (r *Reporter) Advance(metadata map[string]string) int {
	r.mu.Lock()
	r.progress++
	progress := r.progress
	displayTotal := r.total
	if progress > displayTotal {
		displayTotal = progress
	}
	message := fmt.Sprintf("Processed: %d/%d", progress, displayTotal)
	r.lastMessage = message
	r.mu.Unlock()

	if err := r.store.SetProgress(context.Background(), r.opID, progress, message); err != nil {
		r.logger.Warn("persist progress failed", logging.String(logging.FieldOperationID, r.opID), logging.Error(err))
	}

	merged := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		merged[k] = v
	}
	merged["progress"] = strconv.Itoa(progress)
	merged["total"] = strconv.Itoa(displayTotal)
	r.sink.Log(r.opID, events.LevelInfo, message, merged)
	return progress
}

// Log emits one leveled progress event for the operation.
func (r *Reporter) Log(level, message string, metadata map[string]string) {
	r.mu.Lock()
	r.lastMessage = message
	r.mu.Unlock()
	r.sink.Log(r.opID, level, message, metadata)
}

// Snapshot returns the current progress counter and committed total.
func (r *Reporter) Snapshot() (progress, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress, r.total
}

func (r *Reporter) completionMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastMessage != "" {
		return r.lastMessage
	}
	return "operation completed"
}
