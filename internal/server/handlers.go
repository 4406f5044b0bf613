package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"shelf/internal/logging"
	"shelf/internal/operations"
)

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listOperations(w, r)
	case http.MethodPost:
		// POST /operations without a type segment.
		s.writeError(w, http.StatusBadRequest, "operation type required: POST /operations/{type}")
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleOperation routes /operations/{...}: POST {type} submits, GET {id}
// inspects, POST {id}/cancel cancels.
func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/operations/"), "/")
	segments := strings.Split(rest, "/")

	switch {
	case len(segments) == 1 && segments[0] != "" && r.Method == http.MethodPost:
		if opType, ok := operations.ParseType(segments[0]); ok {
			s.submitOperation(w, r, opType)
			return
		}
		s.writeError(w, http.StatusBadRequest, "unknown operation type: "+segments[0])
	case len(segments) == 1 && segments[0] != "" && r.Method == http.MethodGet:
		s.getOperation(w, r, segments[0])
	case len(segments) == 2 && segments[1] == "cancel" && r.Method == http.MethodPost:
		s.cancelOperation(w, r, segments[0])
	case r.Method != http.MethodGet && r.Method != http.MethodPost:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) submitOperation(w http.ResponseWriter, r *http.Request, opType operations.Type) {
	force := parseBool(r.URL.Query().Get("force_update"))

	work, err := s.runners.work(opType, force)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	op, err := s.sched.Submit(r.Context(), opType, work)
	if err != nil {
		switch {
		case errors.Is(err, operations.ErrQueueFull):
			s.writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, operations.ErrSchedulerStopped):
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, op)
}

func (s *Server) getOperation(w http.ResponseWriter, r *http.Request, id string) {
	op, err := s.sched.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, operations.ErrOperationNotFound) {
			s.writeError(w, http.StatusNotFound, "operation not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, op)
}

func (s *Server) listOperations(w http.ResponseWriter, r *http.Request) {
	var statuses []operations.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := operations.ParseStatus(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status: "+trimmed)
			return
		}
		statuses = append(statuses, status)
	}

	ops, err := s.sched.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ops == nil {
		ops = []*operations.Operation{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}

// cancelOperation is best-effort: canceling an operation that already reached
// a terminal status succeeds without changing anything.
func (s *Server) cancelOperation(w http.ResponseWriter, r *http.Request, id string) {
	err := s.sched.Cancel(r.Context(), id)
	switch {
	case err == nil, errors.Is(err, operations.ErrAlreadyTerminal):
		op, getErr := s.sched.Get(r.Context(), id)
		if getErr != nil {
			s.writeError(w, http.StatusInternalServerError, getErr.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, op)
	case errors.Is(err, operations.ErrOperationNotFound):
		s.writeError(w, http.StatusNotFound, "operation not found")
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var snapshot StatusSnapshot
	if s.status != nil {
		snapshot = s.status.Status(r.Context())
	} else {
		snapshot = StatusSnapshot{Running: true}
	}

	stats, err := s.sched.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"daemon":     snapshot,
		"operations": counts,
		"pending":    s.sched.PendingCount(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
