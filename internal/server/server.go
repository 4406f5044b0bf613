package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"shelf/internal/config"
	"shelf/internal/events"
	"shelf/internal/logging"
	"shelf/internal/operations"
)

// Runners supplies the work closure for each operation type. The daemon wires
// these from the concrete collaborators; the server never constructs work
// itself.
type Runners struct {
	Scan          func(force bool) operations.Work
	Organize      func() operations.Work
	Import        func() operations.Work
	MetadataFetch func() operations.Work
}

func (r Runners) work(opType operations.Type, force bool) (operations.Work, error) {
	switch opType {
	case operations.TypeScan:
		if r.Scan != nil {
			return r.Scan(force), nil
		}
	case operations.TypeOrganize:
		if r.Organize != nil {
			return r.Organize(), nil
		}
	case operations.TypeImport:
		if r.Import != nil {
			return r.Import(), nil
		}
	case operations.TypeMetadataFetch:
		if r.MetadataFetch != nil {
			return r.MetadataFetch(), nil
		}
	default:
		return nil, operations.ErrUnknownType
	}
	return nil, fmt.Errorf("no runner registered for %s", opType)
}

// StatusSnapshot describes the daemon process for GET /status.
type StatusSnapshot struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	OperationsDB string `json:"operations_db,omitempty"`
	LockFilePath string `json:"lock_file,omitempty"`
}

// StatusProvider reports daemon process state.
type StatusProvider interface {
	Status(ctx context.Context) StatusSnapshot
}

// Server exposes the operation pipeline over HTTP: submission, inspection,
// cancellation, and the live SSE event stream.
type Server struct {
	bind      string
	logger    *slog.Logger
	sched     *operations.Scheduler
	hub       *events.Hub
	runners   Runners
	status    StatusProvider
	heartbeat time.Duration

	listener net.Listener
	server   *http.Server
}

// New builds the HTTP server. status may be nil; GET /status then reports the
// current process only.
func New(cfg *config.Config, sched *operations.Scheduler, hub *events.Hub, runners Runners, status StatusProvider, logger *slog.Logger) *Server {
	heartbeat := time.Duration(cfg.Stream.HeartbeatInterval) * time.Second
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	srv := &Server{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		logger:    logging.WithComponent(logger, "api-server"),
		sched:     sched,
		hub:       hub,
		runners:   runners,
		status:    status,
		heartbeat: heartbeat,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/operations", srv.handleOperations)
	mux.HandleFunc("/operations/", srv.handleOperation)
	mux.HandleFunc("/events", srv.handleEvents)
	mux.HandleFunc("/status", srv.handleStatus)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: the SSE stream stays open for the life of an
		// operation and is kept alive by heartbeats instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving on the configured bind address. Serving stops when ctx
// is canceled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}
