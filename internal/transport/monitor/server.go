package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/telemetry"
	"github.com/sandevgo/recall/pkg/log"
)

const defaultHistoryLimit = 20

type Memory interface {
	Sessions(ctx context.Context) ([]core.Session, error)
	Session(ctx context.Context, sessionID string) (core.Session, error)
	GetHealth(ctx context.Context, sessionID string) (core.HealthRecord, error)
	HealthHistory(ctx context.Context, sessionID string, limit int) ([]core.HealthRecord, error)
	ListFacts(ctx context.Context, sessionID string, categories ...core.Category) ([]core.Fact, error)
	PreviewBundle(ctx context.Context, sessionID string) (core.MemoryBundle, error)
}

// Server exposes read-only session state and Prometheus metrics to operators.
type Server struct {
	memory  Memory
	metrics *telemetry.Metrics
	http    *http.Server
}

func NewServer(cfg *config.MonitorConfig, memory Memory, metrics *telemetry.Metrics) *Server {
	s := &Server{memory: memory, metrics: metrics}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) Name() string {
	return "monitor"
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	s.http.BaseContext = func(net.Listener) context.Context { return ctx }
	log.FromCtx(ctx).Info().Str("addr", ln.Addr().String()).Msg("monitor listening")

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": core.AppVersion})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Get("/health", s.getHealth)
			r.Get("/health/history", s.getHealthHistory)
			r.Get("/facts", s.listFacts)
			r.Get("/bundle", s.getBundle)
		})
	})
	return r
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.memory.Sessions(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.memory.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	rec, err := s.memory.GetHealth(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, healthView{HealthRecord: rec, Overall: rec.Overall()})
}

func (s *Server) getHealthHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	history, err := s.memory.HealthHistory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]healthView, 0, len(history))
	for _, rec := range history {
		views = append(views, healthView{HealthRecord: rec, Overall: rec.Overall()})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) listFacts(w http.ResponseWriter, r *http.Request) {
	var categories []core.Category
	for _, raw := range r.URL.Query()["category"] {
		c := core.Category(raw)
		if !c.Valid() {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown category: " + raw})
			return
		}
		categories = append(categories, c)
	}

	facts, err := s.memory.ListFacts(r.Context(), chi.URLParam(r, "id"), categories...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if facts == nil {
		facts = []core.Fact{}
	}
	writeJSON(w, http.StatusOK, facts)
}

func (s *Server) getBundle(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.memory.PreviewBundle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundleView{MemoryBundle: bundle, Length: bundle.Len(), Rendered: bundle.Render()})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrUnknownSession) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	log.FromCtx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("monitor request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

type errorBody struct {
	Error string `json:"error"`
}

type healthView struct {
	core.HealthRecord
	Overall float64 `json:"overall"`
}

type bundleView struct {
	core.MemoryBundle
	Length   int    `json:"length"`
	Rendered string `json:"rendered"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
