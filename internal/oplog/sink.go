package oplog

import (
	"log/slog"
	"sync"
	"time"

	"shelf/internal/events"
	"shelf/internal/logging"
)

// Sink records progress events for running operations. Every call appends to
// the operation's durable journal and then forwards the same event to the live
// hub, in that order, so the journal is always a superset of what any one
// subscriber saw. Log never fails the caller: persistence and delivery errors
// are reported through the process logger only.
type Sink struct {
	journals *JournalStore
	hub      *events.Hub
	logger   *slog.Logger

	mu sync.Mutex
}

// NewSink builds a progress sink over the given journal store and hub.
func NewSink(journals *JournalStore, hub *events.Hub, logger *slog.Logger) *Sink {
	return &Sink{
		journals: journals,
		hub:      hub,
		logger:   logging.WithComponent(logger, "progress-sink"),
	}
}

// Log records one progress event for an operation.
func (s *Sink) Log(opID, level, message string, metadata map[string]string) {
	if s == nil || opID == "" {
		return
	}
	evt := events.Event{
		OperationID: opID,
		Level:       level,
		Message:     message,
		Timestamp:   time.Now().UTC(),
		Metadata:    metadata,
	}

	// One writer at a time keeps the journal order and the broadcast order
	// identical.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.journals != nil {
		if err := s.journals.Append(evt); err != nil {
			s.logger.Warn("journal append failed", logging.String(logging.FieldOperationID, opID), logging.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.Publish(evt)
	}
}

// JournalPath returns the durable journal location for an operation.
func (s *Sink) JournalPath(opID string) string {
	if s == nil || s.journals == nil {
		return ""
	}
	return s.journals.Path(opID)
}

// Release closes the journal write handle for a finished operation.
func (s *Sink) Release(opID string) {
	if s == nil || s.journals == nil {
		return
	}
	s.journals.Release(opID)
}
