package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shelf/internal/events"
	"shelf/internal/logging"
	"shelf/internal/operations"
)

// handleEvents streams one operation's progress events as SSE. Subscribers of
// an already-terminal operation receive a single snapshot event and the stream
// closes; live streams close after the terminal event flushes. Idle streams
// carry a comment heartbeat so proxies and clients can detect liveness.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	opID := strings.TrimSpace(r.URL.Query().Get("operation_id"))
	if opID == "" {
		s.writeError(w, http.StatusBadRequest, "operation_id query parameter required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before the status read so a terminal transition between the
	// two is never missed: either the snapshot covers it or the channel does.
	sub := s.hub.Subscribe(opID)
	defer s.hub.Unsubscribe(sub)

	op, err := s.sched.Get(r.Context(), opID)
	if err != nil {
		if errors.Is(err, operations.ErrOperationNotFound) {
			s.writeError(w, http.StatusNotFound, "operation not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if op.Status.IsTerminal() {
		s.writeEvent(w, terminalSnapshot(op))
		flusher.Flush()
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case evt, open := <-sub.C:
			if !open {
				// Terminal event already delivered (or dropped); the durable
				// journal has the full record either way.
				return
			}
			s.writeEvent(w, evt)
			flusher.Flush()
			heartbeat.Reset(s.heartbeat)
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, evt events.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("failed to encode event", logging.Error(err))
		return
	}
	fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
}

// terminalSnapshot synthesizes the event a late subscriber sees for an
// operation that already finished.
func terminalSnapshot(op *operations.Operation) events.Event {
	level := events.LevelInfo
	message := op.Message
	if op.Status == operations.StatusFailed {
		level = events.LevelError
		if op.Error != "" {
			message = "operation failed: " + op.Error
		}
	}
	if message == "" {
		message = "operation " + string(op.Status)
	}
	ts := time.Now().UTC()
	if op.CompletedAt != nil {
		ts = *op.CompletedAt
	}
	return events.Event{
		OperationID: op.ID,
		Level:       level,
		Message:     message,
		Timestamp:   ts,
		Metadata: map[string]string{
			"status":   string(op.Status),
			"progress": fmt.Sprintf("%d", op.Progress),
			"total":    fmt.Sprintf("%d", op.Total),
		},
	}
}
