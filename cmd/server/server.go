package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/decisions/adapter"
	"github.com/liamcoop/decisions/decision"
	"github.com/liamcoop/decisions/internal/config"
	"github.com/liamcoop/decisions/internal/logger"
	"github.com/liamcoop/decisions/registry"
	"github.com/liamcoop/decisions/store"
)

const (
	maxBatchInputs       = 1000
	slowRequestThreshold = time.Second
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	manager *registry.Manager
	store   store.ModelStore
	metrics http.Handler
	checks  []HealthCheck
	cfg     config.Config
	tracer  trace.Tracer
	logger  *slog.Logger
	router  *chi.Mux
}

// ServerDeps are the collaborators main wires into the server.
type ServerDeps struct {
	Manager *registry.Manager
	Store   store.ModelStore // nil when models come only from files
	Metrics http.Handler
	Checks  []HealthCheck
	Tracer  trace.Tracer
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	s := &Server{
		manager: deps.Manager,
		store:   deps.Store,
		metrics: deps.Metrics,
		checks:  deps.Checks,
		cfg:     cfg,
		tracer:  deps.Tracer,
		logger:  logger.Component("http"),
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/liamcoop/decisions/cmd/server")
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.tracing)

	r.Get("/api/v1/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	// Evaluation
	r.Group(func(r chi.Router) {
		r.Use(s.limitBody)
		r.Post("/api/v1/evaluate", s.handleEvaluate)
		r.Post("/api/v1/evaluate/batch", s.handleEvaluateBatch)
		r.Post("/api/v1/orchestration/evaluate", s.handleOrchestration)
	})

	// Model management
	r.Route("/api/v1/models", func(r chi.Router) {
		r.Use(s.limitBody)
		r.Get("/", s.handleListModels)
		r.Post("/", s.handleCreateModel)

		r.Route("/{modelId}", func(r chi.Router) {
			r.Get("/", s.handleGetModel)
			r.Put("/", s.handleUpdateModel)
			r.Delete("/", s.handleDeleteModel)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger replaces chi's text logger with a structured access log.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if elapsed > slowRequestThreshold {
			logger.WarnSlowRequest()
			s.logger.WarnContext(r.Context(), "slow request", attrs...)
			return
		}
		s.logger.DebugContext(r.Context(), "request", attrs...)
	})
}

func (s *Server) tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := s.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.request.method", r.Method)),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxRequestBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := map[string]string{}
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[c.Name] = err.Error()
			continue
		}
		deps[c.Name] = "ok"
	}

	body := map[string]any{
		"status":       "healthy",
		"modelsLoaded": len(s.manager.List()),
		"dependencies": deps,
		"counters":     logger.Counters(),
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	respondJSON(w, status, body)
}

// Evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if (req.ModelID == "") == (len(req.Model) == 0) {
		respondError(w, http.StatusBadRequest, "exactly one of modelId and model is required", nil)
		return
	}

	facts, err := adapter.FactsFromMap(req.Facts)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	start := time.Now()
	var res *decision.Result
	modelID := req.ModelID
	if modelID != "" {
		res, err = s.manager.Evaluate(r.Context(), modelID, facts, req.Exports)
	} else {
		modelID = registry.SourceInline
		res, err = s.manager.EvaluateDefinition(r.Context(), req.Model, facts, req.Exports)
	}
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	resp := EvaluateResponse{
		ModelID:    modelID,
		Result:     res.Values,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
	}
	if req.Trace {
		resp.Trace = res.Trace
	}
	respondJSON(w, http.StatusOK, resp)
}

// Batch evaluation handler. Items are evaluated concurrently; a failed item
// does not fail the batch.
func (s *Server) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchEvaluateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ModelID == "" {
		respondError(w, http.StatusBadRequest, "modelId is required", nil)
		return
	}
	if len(req.Inputs) == 0 {
		respondError(w, http.StatusBadRequest, "inputs must not be empty", nil)
		return
	}
	if len(req.Inputs) > maxBatchInputs {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d inputs per batch", maxBatchInputs), nil)
		return
	}
	if _, err := s.manager.Get(req.ModelID); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	items := make([]BatchItem, len(req.Inputs))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(max(s.cfg.BatchConcurrency, 1))

	for i, input := range req.Inputs {
		g.Go(func() error {
			item := BatchItem{Index: i}
			facts, err := adapter.FactsFromMap(input)
			if err == nil {
				var res *decision.Result
				res, err = s.manager.Evaluate(ctx, req.ModelID, facts, req.Exports)
				if err == nil {
					item.Result = res.Values
				}
			}
			if err != nil {
				body := adapter.ErrorBody(err).Error
				item.Error = &body
			}
			items[i] = item
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "batch evaluation cancelled", err)
		return
	}

	resp := BatchEvaluateResponse{ModelID: req.ModelID, Results: items}
	for _, item := range items {
		if item.Error != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Orchestration handler
func (s *Server) handleOrchestration(w http.ResponseWriter, r *http.Request) {
	var req OrchestrationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Model) == 0 {
		respondError(w, http.StatusBadRequest, "model is required", nil)
		return
	}
	out := adapter.EvaluateOrchestration(req.Model, req.Input)

	var outcome struct {
		Error *adapter.ErrorObject `json:"error"`
	}
	status := http.StatusOK
	if err := json.Unmarshal(out, &outcome); err == nil && outcome.Error != nil {
		status = http.StatusUnprocessableEntity
		logger.WarnHttp4xx(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(out)
}

// List models handler
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	loaded := map[string]*registry.LoadedModel{}
	for _, lm := range s.manager.List() {
		loaded[lm.ID] = lm
	}

	models := []ModelResponse{}
	seen := map[string]bool{}
	if s.store != nil {
		stored, err := s.store.List(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list models", err)
			return
		}
		for _, sm := range stored {
			lm := loaded[sm.ID]
			if lm != nil && lm.Source != registry.SourceStore {
				continue
			}
			resp := modelFromStored(sm, lm)
			resp.Definition = nil
			models = append(models, resp)
			seen[sm.ID] = true
		}
	}
	for _, lm := range s.manager.List() {
		if !seen[lm.ID] {
			models = append(models, modelFromLoaded(lm))
		}
	}

	respondJSON(w, http.StatusOK, ModelsListResponse{Models: models})
}

// Create model handler
func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	var req CreateModelRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Definition) == 0 {
		respondError(w, http.StatusBadRequest, "definition is required", nil)
		return
	}

	sm := &store.StoredModel{
		ID:         req.ID,
		Name:       req.Name,
		Definition: req.Definition,
		Active:     req.Active == nil || *req.Active,
	}
	if sm.Name == "" {
		sm.Name = sm.ID
	}

	if err := s.manager.Create(r.Context(), sm); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	lm, _ := s.manager.Get(sm.ID)
	respondJSON(w, http.StatusCreated, modelFromStored(sm, lm))
}

// Get model handler
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelId")

	lm, loadErr := s.manager.Get(id)
	if loadErr == nil && lm.Source == registry.SourceFile {
		resp := modelFromLoaded(lm)
		if def, err := adapter.EncodeModel(lm.Evaluator.Model()); err == nil {
			resp.Definition = def
		}
		respondJSON(w, http.StatusOK, resp)
		return
	}
	if s.store == nil {
		respondError(w, http.StatusNotFound, "model not found", store.ErrNotFound)
		return
	}

	sm, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if loadErr != nil {
		lm = nil
	}
	respondJSON(w, http.StatusOK, modelFromStored(sm, lm))
}

// Update model handler
func (s *Server) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelId")

	var req UpdateModelRequest
	if !s.decode(w, r, &req) {
		return
	}
	if lm, err := s.manager.Get(id); err == nil && lm.Source == registry.SourceFile {
		s.respondServiceError(w, r, fmt.Errorf("model %s: %w", id, registry.ErrFileModel))
		return
	}
	if s.store == nil {
		s.respondServiceError(w, r, registry.ErrNoStore)
		return
	}

	existing, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if len(req.Definition) > 0 {
		existing.Definition = req.Definition
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	if err := s.manager.Update(r.Context(), existing); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	lm, err := s.manager.Get(id)
	if err != nil {
		lm = nil
	}
	respondJSON(w, http.StatusOK, modelFromStored(existing, lm))
}

// Delete model handler
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.Context(), chi.URLParam(r, "modelId")); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body, answering 413 for oversized bodies and 400 for
// anything else it cannot parse.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// respondServiceError maps registry, store and evaluation errors to HTTP
// statuses. Evaluation errors keep the structured error object.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var evalErr *decision.Error
	switch {
	case errors.As(err, &evalErr):
		logger.WarnHttp4xx(http.StatusUnprocessableEntity)
		respondJSON(w, http.StatusUnprocessableEntity, adapter.ErrorBody(err))
	case errors.Is(err, registry.ErrModelNotFound), errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "model not found", err)
	case errors.Is(err, store.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "model already exists", err)
	case errors.Is(err, registry.ErrFileModel):
		respondError(w, http.StatusConflict, "model is read-only", err)
	case errors.Is(err, registry.ErrNoStore):
		respondError(w, http.StatusNotImplemented, "model storage is not configured", err)
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	switch {
	case status >= 500:
		logger.ErrorHttp5xx()
	case status >= 400:
		logger.WarnHttp4xx(status)
	}

	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
