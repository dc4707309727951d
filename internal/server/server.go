// Package server provides the HTTP and websocket API for agentcore.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flynn-ai/agentcore/internal/agent"
	"github.com/flynn-ai/agentcore/internal/checkpoint"
	"github.com/flynn-ai/agentcore/internal/classifier"
	apperrors "github.com/flynn-ai/agentcore/internal/errors"
	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/internal/runlog"
	"github.com/flynn-ai/agentcore/internal/tools"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

// RunStore answers run and insight queries. *runlog.Store implements it.
type RunStore interface {
	ListRuns(ctx context.Context, f runlog.RunFilter) ([]runlog.Run, error)
	ListInsights(ctx context.Context, f runlog.InsightFilter) ([]runlog.InsightRecord, error)
	DismissInsight(ctx context.Context, id string) error
}

// Options configures a Server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Orchestrator *agent.Orchestrator
	Router       *model.Router
	Tools        *tools.Registry
	Checkpoints  checkpoint.Store
	Runs         RunStore // optional

	// DBPaths are reported by /stats.
	DBPaths []string
	Logger  *slog.Logger
}

// Server serves the agentcore API.
type Server struct {
	opts     Options
	orch     *agent.Orchestrator
	router   *model.Router
	tools    *tools.Registry
	store    checkpoint.Store
	runs     RunStore
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// New creates a server. Call Start to listen, or use Handler directly.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:   opts,
		orch:   opts.Orchestrator,
		router: opts.Router,
		tools:  opts.Tools,
		store:  opts.Checkpoints,
		runs:   opts.Runs,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/turns", s.handleTurn)
	mux.HandleFunc("GET /v1/turns/stream", s.handleTurnStream)

	mux.HandleFunc("GET /v1/threads", s.handleListThreads)
	mux.HandleFunc("GET /v1/threads/{id}/checkpoints", s.handleListCheckpoints)
	mux.HandleFunc("DELETE /v1/threads/{id}", s.handleDeleteThread)

	mux.HandleFunc("GET /v1/tools", s.handleListTools)
	mux.HandleFunc("POST /v1/route", s.handleRoute)

	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/insights", s.handleListInsights)
	mux.HandleFunc("POST /v1/insights/{id}/dismiss", s.handleDismissInsight)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.logRequests(mux)
}

// Start listens until Shutdown is called. It returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	s.logger.Info("api listening", "addr", s.opts.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
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

// ============================================================
// Responses
// ============================================================

// errorBody is the JSON body of every non-2xx response.
type errorBody struct {
	ThreadID     string          `json:"thread_id,omitempty"`
	CheckpointID string          `json:"checkpoint_id,omitempty"`
	Fault        *protocol.Fault `json:"fault"`
}

// statusFor maps a fault category to an HTTP status.
func statusFor(cat apperrors.Category) int {
	switch cat {
	case apperrors.CategoryValidation:
		return http.StatusBadRequest
	case apperrors.CategoryQuota:
		return http.StatusTooManyRequests
	case apperrors.CategoryPersistenceConflict:
		return http.StatusConflict
	case apperrors.CategoryTransientProvider:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFault writes a classified failure.
func (s *Server) writeFault(w http.ResponseWriter, fc classifier.FaultContext, threadID, checkpointID string) {
	wire := fc.Wire()
	if wire.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(wire.RetryAfterSeconds))
	}
	status := statusFor(fc.Category)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", fc.Code, "error", fc.TechnicalMessage)
	}
	writeJSON(w, status, errorBody{ThreadID: threadID, CheckpointID: checkpointID, Fault: wire})
}

// writeError classifies err and writes it.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var te *agent.TurnError
	if errors.As(err, &te) {
		s.writeFault(w, te.Fault, te.ThreadID, te.CheckpointID)
		return
	}
	s.writeFault(w, classifier.Classify(err), "", "")
}

func badRequest(msg string) error {
	return apperrors.Validation(apperrors.CodeInvalidInput, msg)
}
