// Package server exposes the engine over HTTP: catalog reads, the concierge
// endpoint and the librarian surfaces for holds, onboarding, feedback and
// collection insights.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shelfwise/shelfwise/agent"
	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/logging"
	"github.com/shelfwise/shelfwise/state"
	"github.com/shelfwise/shelfwise/tool"
)

// Server wires the HTTP routes to the engine components.
type Server struct {
	snapshots    core.SnapshotProvider
	store        state.Store
	orchestrator *agent.Orchestrator
	registry     *tool.Registry
	logger       logging.Logger

	holdRetention  time.Duration
	feedbackWeight float64
	defaultTopK    int
}

// Options configure the server.
type Options struct {
	Logger         logging.Logger
	HoldRetention  time.Duration
	FeedbackWeight float64
	DefaultTopK    int
}

// New creates a server over the given components.
func New(snapshots core.SnapshotProvider, store state.Store, orchestrator *agent.Orchestrator, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:         logging.NoOpLogger{},
		HoldRetention:  7 * 24 * time.Hour,
		FeedbackWeight: 1.0,
		DefaultTopK:    5,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{
		snapshots:      snapshots,
		store:          store,
		orchestrator:   orchestrator,
		registry:       tool.DefaultRegistry(opts.Logger),
		logger:         opts.Logger,
		holdRetention:  opts.HoldRetention,
		feedbackWeight: opts.FeedbackWeight,
		defaultTopK:    opts.DefaultTopK,
	}
}

// WithLogger sets the request logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithHoldRetention sets the hold expiry window for direct hold placement.
func WithHoldRetention(d time.Duration) func(o *Options) {
	return func(o *Options) { o.HoldRetention = d }
}

// WithFeedbackWeight sets the rating blend weight for boosted
// recommendation endpoints.
func WithFeedbackWeight(w float64) func(o *Options) {
	return func(o *Options) { o.FeedbackWeight = w }
}

// WithDefaultTopK sets the recommendation list size when the query omits k.
func WithDefaultTopK(k int) func(o *Options) {
	return func(o *Options) { o.DefaultTopK = k }
}

// Router assembles the chi router with all routes and middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/catalog", s.handleCatalog)
	r.Get("/students", s.handleStudents)
	r.Get("/recommendations", s.handleRecommendations)

	r.Route("/agents", func(r chi.Router) {
		r.Post("/concierge", s.handleConcierge)

		r.Get("/availability", s.handleAgentAvailability)

		r.Get("/holds", s.handleListHolds)
		r.Post("/holds", s.handlePlaceHold)
		r.Post("/holds/{holdID}/cancel", s.handleCancelHold)

		r.Get("/onboarding/{studentID}", s.handleGetOnboarding)
		r.Post("/onboarding", s.handleUpdateOnboarding)

		r.Get("/snapshot/{studentID}", s.handleStudentSnapshot)

		r.Post("/feedback", s.handleRecordFeedback)
		r.Get("/feedback", s.handleListFeedback)
		r.Get("/feedback/insights", s.handleFeedbackInsights)
		r.Get("/feedback/recommendations", s.handleBoostedRecommendations)

		r.Get("/collection-gaps", s.handleCollectionGaps)
	})
	return r
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("server.listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// logRequests is minimal structured request logging on top of chi's
// middleware stack.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// errorBody is the uniform error envelope.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	switch {
	case core.IsValidation(err):
		status, code = http.StatusBadRequest, "validation"
	case errors.Is(err, core.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, core.ErrDependencyUnavailable):
		status, code = http.StatusServiceUnavailable, "dependency_unavailable"
	}
	if status >= 500 {
		s.logger.Error("http.error", "error", err.Error())
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.NewValidationError("body", "", "malformed JSON request body")
	}
	return nil
}
