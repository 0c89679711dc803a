// Package api is the daemon's local control API: a JSON-over-HTTP server
// in front of the orchestrator and the client the CLI uses to reach it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Iron-Ham/mapswitch/internal/history"
	"github.com/Iron-Ham/mapswitch/internal/logging"
	"github.com/Iron-Ham/mapswitch/internal/orchestrator"
	"github.com/Iron-Ham/mapswitch/internal/session"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// shutdownTimeout bounds a graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Service is what the API exposes. *orchestrator.Service implements it.
type Service interface {
	Status() orchestrator.Status
	History(ctx context.Context, limit int) ([]history.Entry, error)
	Load(ctx context.Context, slot string, wait bool) error
	StartVote(ctx context.Context, req orchestrator.VoteRequest) (session.VoteState, error)
	CurrentVote() (session.VoteState, error)
	CancelVote() error
	Cast(voter, option string) (session.Option, error)
	DelayRolling(d time.Duration) (time.Time, error)
	StartRolling() (time.Time, error)
	StopRolling() error
	// Reload re-reads the daemon configuration and applies what can change
	// at runtime.
	Reload(ctx context.Context) error
}

// LoadRequest is the body of POST /api/load.
type LoadRequest struct {
	Slot string `json:"slot"`
	// Wait queues for the gate instead of failing when it is busy.
	Wait bool `json:"wait,omitempty"`
}

// LoadResponse reports an installed slot.
type LoadResponse struct {
	Slot string `json:"slot"`
}

// BallotRequest is the body of POST /api/votes/current/ballots.
type BallotRequest struct {
	Voter  string `json:"voter"`
	Option string `json:"option"`
}

// BallotResponse echoes the accepted ballot.
type BallotResponse struct {
	Voter  string         `json:"voter"`
	Option session.Option `json:"option"`
}

// DelayRequest is the body of POST /api/rolling/delay. Zero minutes means
// the configured default.
type DelayRequest struct {
	Minutes int `json:"minutes"`
}

// RollingResponse reports when the next roll is due.
type RollingResponse struct {
	NextFire time.Time `json:"next_fire"`
}

// Server serves the control API.
type Server struct {
	router  *mux.Router
	svc     Service
	limiter *BallotLimiter
	logger  *logging.Logger
}

// NewServer creates a Server. limiter and logger may be nil.
func NewServer(svc Service, limiter *BallotLimiter, logger *logging.Logger) *Server {
	if limiter == nil {
		limiter = NewBallotLimiter(0, 1, nil)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Server{
		router:  mux.NewRouter(),
		svc:     svc,
		limiter: limiter,
		logger:  logger.With("component", "api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/load", s.handleLoad).Methods(http.MethodPost)

	api.HandleFunc("/votes", s.handleStartVote).Methods(http.MethodPost)
	api.HandleFunc("/votes/current", s.handleCurrentVote).Methods(http.MethodGet)
	api.HandleFunc("/votes/current", s.handleCancelVote).Methods(http.MethodDelete)
	api.HandleFunc("/votes/current/ballots", s.handleCast).Methods(http.MethodPost)

	api.HandleFunc("/rolling/delay", s.handleDelay).Methods(http.MethodPost)
	api.HandleFunc("/rolling/start", s.handleStartRolling).Methods(http.MethodPost)
	api.HandleFunc("/rolling/stop", s.handleStopRolling).Methods(http.MethodPost)

	api.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds addr so bind errors surface before Serve.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("control API listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown control API: %w", err)
		}
		return nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", ErrBadRequest))
			return
		}
		limit = n
	}
	entries, err := s.svc.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Slot == "" {
		s.writeError(w, r, fmt.Errorf("%w: slot is required", orchestrator.ErrInvalidArgument))
		return
	}
	if err := s.svc.Load(r.Context(), req.Slot, req.Wait); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoadResponse{Slot: req.Slot})
}

func (s *Server) handleStartVote(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.VoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	state, err := s.svc.StartVote(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleCurrentVote(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.CurrentVote()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleCancelVote(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.CancelVote(); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCast(w http.ResponseWriter, r *http.Request) {
	var req BallotRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Voter == "" {
		s.writeError(w, r, fmt.Errorf("%w: voter is required", orchestrator.ErrInvalidArgument))
		return
	}
	if !s.limiter.Allow(req.Voter) {
		s.writeError(w, r, ErrRateLimited)
		return
	}
	opt, err := s.svc.Cast(req.Voter, req.Option)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BallotResponse{Voter: req.Voter, Option: opt})
}

func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	var req DelayRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Minutes < 0 {
		s.writeError(w, r, fmt.Errorf("%w: %d minutes", session.ErrInvalidDelay, req.Minutes))
		return
	}
	next, err := s.svc.DelayRolling(time.Duration(req.Minutes) * time.Minute)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RollingResponse{NextFire: next})
}

func (s *Server) handleStartRolling(w http.ResponseWriter, r *http.Request) {
	next, err := s.svc.StartRolling()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RollingResponse{NextFire: next})
}

func (s *Server) handleStopRolling(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.StopRolling(); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reload(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	} else {
		s.logger.Debug("request refused", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}
	writeJSON(w, status, ErrorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
