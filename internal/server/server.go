package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/raysh454/scanhub/internal/alerts"
	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
	"github.com/raysh454/scanhub/internal/queue"
	"github.com/raysh454/scanhub/internal/status"
)

const maxLoggedBody = 4 << 10

// Queue is the slice of the queue gateway the API uses.
type Queue interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (*model.Job, error)
	Job(ctx context.Context, id string) (*model.Job, error)
	Status(ctx context.Context) (*queue.QueueStatus, error)
	Reset(ctx context.Context) (queue.ConnState, error)
	State() queue.ConnState
}

// StatusSource produces the aggregated polling snapshot.
type StatusSource interface {
	Snapshot(ctx context.Context) (*status.Snapshot, error)
}

// Reports serves artifacts from the report store.
type Reports interface {
	List(ctx context.Context) ([]model.ReportArtifact, error)
	Read(ctx context.Context, reportType string) ([]byte, string, error)
	Diff(reportType string) (*model.ReportDiff, error)
}

// Alerts is the alert repository.
type Alerts interface {
	List(ctx context.Context, f alerts.Filter) ([]model.Alert, error)
	UpdateStatus(ctx context.Context, id, ownerID string, next model.AlertStatus) (*model.Alert, error)
}

// Deps are the components the API fronts.
type Deps struct {
	Queue   Queue
	Status  StatusSource
	Reports Reports
	Alerts  Alerts
}

// Server is the HTTP API surface for scanhub.
type Server struct {
	cfg    Config
	deps   Deps
	router chi.Router
	logger logging.Logger
}

// NewServer wires the routes over deps.
func NewServer(cfg Config, deps Deps, logger logging.Logger) (*Server, error) {
	if deps.Queue == nil || deps.Status == nil || deps.Reports == nil || deps.Alerts == nil {
		return nil, errors.New("server: all dependencies are required")
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: chi.NewRouter(),
		logger: logger.With(logging.Field{Key: "component", Value: "server"}),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	s.mountDocs(r)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		// Scans
		r.Post("/scans", s.handleSubmitScan)
		r.Get("/scans/status", s.handleQueueStatus)
		r.Get("/scans/{jobID}", s.handleGetJob)

		r.Get("/status", s.handleStatus)

		// Reports
		r.Get("/reports", s.handleListReports)
		r.Get("/reports/{type}", s.handleGetReport)
		r.Get("/reports/{type}/diff", s.handleReportDiff)

		// Alerts
		r.Get("/alerts", s.handleListAlerts)
		r.Patch("/alerts/{alertID}", s.handleUpdateAlert)

		r.With(s.requireAdmin).Post("/admin/queue/reset", s.handleQueueReset)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Owner-ID, X-Role")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			logged := bodyBytes
			if len(logged) > maxLoggedBody {
				logged = logged[:maxLoggedBody]
			}
			fields = append(fields, logging.Field{Key: "body", Value: string(logged)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	readTimeout := s.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	render.Status(r, code)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, r, code, ErrorResponse{Error: msg})
}

// writeDomainError maps a component error onto its HTTP status.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrQueueUnavailable):
		s.logger.Warn(op, logging.Err(err))
		writeJSON(w, r, http.StatusServiceUnavailable, UnavailableResponse{Error: model.ErrQueueUnavailable.Error(), Available: false})
		return
	case errors.Is(err, model.ErrInvalidSpec):
		code = http.StatusBadRequest
	case errors.Is(err, model.ErrJobNotFound), errors.Is(err, model.ErrAlertNotFound),
		errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrUnknownReportType):
		code = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.Is(err, model.ErrCorrupt):
		code = http.StatusUnprocessableEntity
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error(op, logging.Err(err))
	} else {
		s.logger.Warn(op, logging.Err(err))
	}
	writeError(w, r, code, err.Error())
}
