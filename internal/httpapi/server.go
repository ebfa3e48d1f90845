// Package httpapi exposes the engine's §6 surfaces over HTTP: counter
// snapshots, deadline-event polling, workload config upsert/remove
// gated by admission policy, and a Prometheus scrape endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/srijanshukla18/scx-slo/internal/admission"
	"github.com/srijanshukla18/scx-slo/internal/configsource"
	"github.com/srijanshukla18/scx-slo/internal/observability"
	"github.com/srijanshukla18/scx-slo/internal/scxslo"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server wraps the chi router and the engine it fronts.
type Server struct {
	router *chi.Mux
	engine *scxslo.Engine
	admit  *admission.Engine
	audit  *admission.AuditLog
	prom   *observability.PromExporter
	log    *logrus.Entry
	addr   string

	mu        sync.Mutex
	namespace map[scxslo.WID]string // for namespace-scoped admission quotas
}

// NewServer builds a Server for engine, gated by admit, recording
// admission decisions to audit.
func NewServer(addr string, engine *scxslo.Engine, admit *admission.Engine, audit *admission.AuditLog, log *logrus.Entry) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		engine:    engine,
		admit:     admit,
		audit:     audit,
		prom:      observability.NewPromExporter(),
		log:       log,
		addr:      addr,
		namespace: make(map[scxslo.WID]string),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.tracingMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", observability.Handler())
	s.router.Get("/v1/counters", s.handleCounters)
	s.router.Get("/v1/metrics", s.handleMetricsSnapshot)
	s.router.Get("/v1/metrics/prometheus", s.handleMetricsPrometheus)

	s.router.Route("/v1/workloads", func(r chi.Router) {
		r.Put("/{workloadId}", s.handleUpsertWorkload)
		r.Delete("/{workloadId}", s.handleRemoveWorkload)
		r.Get("/{workloadId}", s.handleGetWorkload)
	})

	s.router.Get("/v1/events", s.handlePollEvents)
	s.router.Get("/v1/events/raw", s.handlePollEventsRaw)
	s.router.Get("/v1/admin/audit", s.handleListAudit)
}

// Router returns the chi router, for tests that want to drive it
// directly with httptest.
func (s *Server) Router() *chi.Mux { return s.router }

// Run starts the HTTP server and blocks until a shutdown signal or
// server error.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("sloengine listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("sloengine stopped")
	return nil
}

// tracingMiddleware opens an OpenTelemetry span around every request,
// matching the teacher's withTracing wrapper; Config Source
// reconciliation loops open their own spans the same way (§10).
func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCounters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ReadCounters())
}

func (s *Server) handleMetricsSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.ReadCounters()
	observability.PublishEngineCounters(observability.Default, snap)
	writeJSON(w, http.StatusOK, observability.Default.Snapshot())
}

func (s *Server) handleMetricsPrometheus(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.ReadCounters()
	s.prom.Sync(snap)
	s.prom.SyncDropped(s.engine.DroppedEvents())
	observability.PublishEngineCounters(observability.Default, snap)
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(observability.Default.RenderPrometheus()))
}

type upsertWorkloadRequest struct {
	Namespace          string `json:"namespace"`
	WorkloadName       string `json:"workload_name"`
	PriorityClass      string `json:"priority_class"`
	DataClassification string `json:"data_classification"`
	BudgetMS           uint64 `json:"budget_ms"`
	Importance         uint32 `json:"importance"`
}

func (s *Server) handleUpsertWorkload(w http.ResponseWriter, r *http.Request) {
	widRaw := chi.URLParam(r, "workloadId")
	widVal, err := strconv.ParseUint(widRaw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "workloadId must be a uint64")
		return
	}

	var req upsertWorkloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wid := scxslo.WID(widVal)
	budgetNS := req.BudgetMS * uint64(time.Millisecond)

	s.mu.Lock()
	namespaceCount := 0
	for existing, ns := range s.namespace {
		if ns == req.Namespace && existing != wid {
			namespaceCount++
		}
	}
	s.mu.Unlock()

	decision := s.admit.Evaluate(admission.UpsertInput{
		Namespace:           req.Namespace,
		WorkloadName:        req.WorkloadName,
		PriorityClass:       req.PriorityClass,
		DataClassification:  req.DataClassification,
		Importance:          req.Importance,
		BudgetNS:            budgetNS,
		NamespaceCount:      namespaceCount,
	})
	if s.audit != nil {
		s.audit.Append(req.Namespace, req.WorkloadName, decision)
	}
	if !decision.Allowed {
		writeJSON(w, http.StatusForbidden, decision)
		return
	}

	if cerr := s.engine.UpsertConfig(wid, scxslo.SloCfg{BudgetNS: budgetNS, Importance: req.Importance}); cerr != scxslo.ErrNone {
		writeError(w, http.StatusBadRequest, cerr.Error())
		return
	}

	s.mu.Lock()
	s.namespace[wid] = req.Namespace
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleRemoveWorkload(w http.ResponseWriter, r *http.Request) {
	widVal, err := strconv.ParseUint(chi.URLParam(r, "workloadId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "workloadId must be a uint64")
		return
	}
	wid := scxslo.WID(widVal)
	removed := s.engine.RemoveConfig(wid)
	s.mu.Lock()
	delete(s.namespace, wid)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleGetWorkload(w http.ResponseWriter, r *http.Request) {
	widVal, err := strconv.ParseUint(chi.URLParam(r, "workloadId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "workloadId must be a uint64")
		return
	}
	cfg, ok := s.engine.GetConfig(scxslo.WID(widVal))
	if !ok {
		writeError(w, http.StatusNotFound, "workload not configured")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePollEvents(w http.ResponseWriter, r *http.Request) {
	maxEvents, timeout := parsePollParams(r)
	events := s.engine.Poll(maxEvents, timeout)
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "dropped": s.engine.DroppedEvents()})
}

// handlePollEventsRaw serves the same poll as handlePollEvents but
// writes each DeadlineEvent as its raw 24-byte little-endian wire
// encoding (§6.2's DeadlineEvent.Encode), back to back with no framing,
// for a consumer reading the wire format directly instead of JSON.
func (s *Server) handlePollEventsRaw(w http.ResponseWriter, r *http.Request) {
	maxEvents, timeout := parsePollParams(r)
	events := s.engine.Poll(maxEvents, timeout)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	for _, e := range events {
		buf := e.Encode()
		_, _ = w.Write(buf[:])
	}
}

func parsePollParams(r *http.Request) (maxEvents int, timeout time.Duration) {
	maxEvents = 100
	if raw := r.URL.Query().Get("max"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxEvents = v
		}
	}
	if raw := r.URL.Query().Get("timeout_ms"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			timeout = time.Duration(v) * time.Millisecond
		}
	}
	return maxEvents, timeout
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []admission.AuditEvent{}})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	query := admission.AuditQuery{
		Namespace: r.URL.Query().Get("namespace"),
		Limit:     limit,
	}
	events := s.audit.List(query)
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "chain_valid": s.audit.Verify()})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NewFileSourceFromEnv wires a configsource.FileWatcher from
// SLOSCX_CONFIG_FILE/SLOSCX_CONFIG_POLL_SECONDS, returning nil if the
// env var is unset.
func NewFileSourceFromEnv(engine *scxslo.Engine, admit *admission.Engine, audit *admission.AuditLog) *configsource.FileWatcher {
	path := os.Getenv("SLOSCX_CONFIG_FILE")
	if path == "" {
		return nil
	}
	seconds := 5
	if raw := os.Getenv("SLOSCX_CONFIG_POLL_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			seconds = v
		}
	}
	return configsource.NewFileWatcher(path, time.Duration(seconds)*time.Second, engine, admit, audit)
}
