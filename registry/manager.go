// Package registry keeps compiled decision models in memory and keeps them
// in sync with the model store and a model directory.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/liamcoop/decisions/adapter"
	"github.com/liamcoop/decisions/decision"
	"github.com/liamcoop/decisions/internal/audit"
	"github.com/liamcoop/decisions/internal/metrics"
	"github.com/liamcoop/decisions/store"
)

var (
	ErrModelNotFound = errors.New("model not loaded")
	ErrFileModel     = errors.New("model is loaded from a file and cannot be changed through the store")
	ErrNoStore       = errors.New("no model store configured")
)

// Model sources.
const (
	SourceStore  = "store"
	SourceFile   = "file"
	SourceInline = "inline"
)

// LoadedModel is a compiled model ready for evaluation.
type LoadedModel struct {
	ID        string
	Name      string
	Version   int
	Source    string
	Path      string // set for file models
	Evaluator *decision.Evaluator
	LoadedAt  time.Time
}

// Manager holds compiled models by id. Reloads build a fresh set of
// evaluators and swap them in under the write lock, so evaluations never
// observe a half-loaded model.
type Manager struct {
	models map[string]*LoadedModel
	mu     sync.RWMutex

	store     store.ModelStore
	metrics   *metrics.Metrics
	publisher audit.Publisher
	tracer    trace.Tracer
	logger    *slog.Logger
	parseOpts []adapter.ParseOption
}

// Option configures a Manager.
type Option func(*Manager)

func WithStore(s store.ModelStore) Option {
	return func(m *Manager) { m.store = s }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithPublisher(p audit.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithParseOptions applies opts whenever a definition is parsed.
func WithParseOptions(opts ...adapter.ParseOption) Option {
	return func(m *Manager) { m.parseOpts = append(m.parseOpts, opts...) }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		models: make(map[string]*LoadedModel),
		tracer: noop.NewTracerProvider().Tracer("registry"),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "registry")
	return m
}

// Compile parses a JSON definition and builds its evaluator.
func (m *Manager) Compile(definition []byte) (*decision.Evaluator, error) {
	model, err := adapter.ParseModel(definition, m.parseOpts...)
	if err != nil {
		return nil, err
	}
	return decision.NewEvaluator(model)
}

func (m *Manager) compileFile(path string) (*decision.Evaluator, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var model *decision.Model
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		model, err = adapter.ParseModelYAML(raw, m.parseOpts...)
	default:
		model, err = adapter.ParseModel(raw, m.parseOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return decision.NewEvaluator(model)
}

// LoadAll reloads every active model from the store. Models that fail to
// compile are skipped and reported in the returned error; the rest are
// installed.
func (m *Manager) LoadAll(ctx context.Context) error {
	return m.reloadStore(ctx, metrics.SourceStore)
}

func (m *Manager) reloadStore(ctx context.Context, source string) error {
	if m.store == nil {
		return nil
	}

	stored, err := m.store.ListActive(ctx)
	if err != nil {
		m.metrics.IncrementReload(source, err)
		return fmt.Errorf("failed to list models: %w", err)
	}

	fresh := make(map[string]*LoadedModel, len(stored))
	var errs []error
	for _, sm := range stored {
		ev, err := m.Compile(sm.Definition)
		if err != nil {
			errs = append(errs, fmt.Errorf("model %s: %w", sm.ID, err))
			continue
		}
		fresh[sm.ID] = fromStored(sm, ev)
	}

	m.mu.Lock()
	for id, lm := range m.models {
		if lm.Source == SourceFile {
			if _, clash := fresh[id]; !clash {
				fresh[id] = lm
			}
		}
	}
	m.models = fresh
	count := len(m.models)
	m.mu.Unlock()

	m.metrics.SetModelsLoaded(count)
	err = errors.Join(errs...)
	m.metrics.IncrementReload(source, err)
	if err != nil {
		m.logger.WarnContext(ctx, "some models failed to load", "source", source, "error", err)
	}
	m.logger.InfoContext(ctx, "models loaded from store", "source", source, "loaded", len(stored)-len(errs), "failed", len(errs))
	return err
}

// LoadDirectory replaces all file models with the *.json, *.yaml and *.yml
// files in dir. A file's model id is its base name without extension. Files
// whose id is already used by a store model are skipped.
func (m *Manager) LoadDirectory(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		m.metrics.IncrementReload(metrics.SourceFile, err)
		return fmt.Errorf("failed to read model directory: %w", err)
	}

	fresh := make(map[string]*LoadedModel)
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !isModelFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))

		ev, err := m.compileFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fresh[id] = &LoadedModel{
			ID:        id,
			Name:      id,
			Version:   1,
			Source:    SourceFile,
			Path:      path,
			Evaluator: ev,
			LoadedAt:  time.Now().UTC(),
		}
	}

	m.mu.Lock()
	next := make(map[string]*LoadedModel, len(m.models)+len(fresh))
	for id, lm := range m.models {
		if lm.Source != SourceFile {
			next[id] = lm
		}
	}
	for id, lm := range fresh {
		if existing, clash := next[id]; clash {
			errs = append(errs, fmt.Errorf("%s: id %q is already used by a %s model", filepath.Base(lm.Path), id, existing.Source))
			continue
		}
		if previous, ok := m.models[id]; ok && previous.Source == SourceFile {
			lm.Version = previous.Version + 1
		}
		next[id] = lm
	}
	m.models = next
	count := len(m.models)
	m.mu.Unlock()

	m.metrics.SetModelsLoaded(count)
	err = errors.Join(errs...)
	m.metrics.IncrementReload(metrics.SourceFile, err)
	if err != nil {
		m.logger.WarnContext(ctx, "some model files failed to load", "dir", dir, "error", err)
	}
	m.logger.InfoContext(ctx, "models loaded from directory", "dir", dir, "files", len(fresh))
	return err
}

func isModelFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// Create validates the definition, stores it and installs the model.
func (m *Manager) Create(ctx context.Context, sm *store.StoredModel) error {
	if m.store == nil {
		return ErrNoStore
	}
	ev, err := m.Compile(sm.Definition)
	if err != nil {
		return err
	}
	if lm, err := m.Get(sm.ID); err == nil && lm.Source == SourceFile {
		return fmt.Errorf("model %s: %w", sm.ID, ErrFileModel)
	}
	if err := m.store.Add(ctx, sm); err != nil {
		return err
	}
	m.install(sm, ev)
	return nil
}

// Update validates the new definition, stores it and swaps the model.
// Deactivated models are unloaded.
func (m *Manager) Update(ctx context.Context, sm *store.StoredModel) error {
	if m.store == nil {
		return ErrNoStore
	}
	ev, err := m.Compile(sm.Definition)
	if err != nil {
		return err
	}
	if lm, err := m.Get(sm.ID); err == nil && lm.Source == SourceFile {
		return fmt.Errorf("model %s: %w", sm.ID, ErrFileModel)
	}
	if err := m.store.Update(ctx, sm); err != nil {
		return err
	}
	m.install(sm, ev)
	return nil
}

// Delete removes a model from the store and unloads it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if lm, err := m.Get(id); err == nil && lm.Source == SourceFile {
		return fmt.Errorf("model %s: %w", id, ErrFileModel)
	}
	if m.store == nil {
		return ErrNoStore
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.remove(id)
	return nil
}

func (m *Manager) install(sm *store.StoredModel, ev *decision.Evaluator) {
	if !sm.Active {
		m.remove(sm.ID)
		return
	}
	m.mu.Lock()
	m.models[sm.ID] = fromStored(sm, ev)
	count := len(m.models)
	m.mu.Unlock()

	m.metrics.SetModelsLoaded(count)
	m.metrics.IncrementReload(metrics.SourceAPI, nil)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.models, id)
	count := len(m.models)
	m.mu.Unlock()

	m.metrics.SetModelsLoaded(count)
}

func fromStored(sm *store.StoredModel, ev *decision.Evaluator) *LoadedModel {
	return &LoadedModel{
		ID:        sm.ID,
		Name:      sm.Name,
		Version:   sm.Version,
		Source:    SourceStore,
		Evaluator: ev,
		LoadedAt:  time.Now().UTC(),
	}
}

// Get returns the loaded model with the given id.
func (m *Manager) Get(id string) (*LoadedModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lm, ok := m.models[id]
	if !ok {
		return nil, fmt.Errorf("model %s: %w", id, ErrModelNotFound)
	}
	return lm, nil
}

// List returns the loaded models ordered by id.
func (m *Manager) List() []*LoadedModel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*LoadedModel, 0, len(m.models))
	for _, lm := range m.models {
		out = append(out, lm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Evaluate runs a loaded model against facts.
func (m *Manager) Evaluate(ctx context.Context, id string, facts map[string]string, exports []string) (*decision.Result, error) {
	lm, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return m.evaluate(ctx, lm.ID, lm.Evaluator, facts, exports)
}

// EvaluateDefinition compiles a definition that is not stored and runs it.
func (m *Manager) EvaluateDefinition(ctx context.Context, definition []byte, facts map[string]string, exports []string) (*decision.Result, error) {
	ev, err := m.Compile(definition)
	if err != nil {
		return nil, err
	}
	return m.evaluate(ctx, SourceInline, ev, facts, exports)
}

func (m *Manager) evaluate(ctx context.Context, id string, ev *decision.Evaluator, facts map[string]string, exports []string) (*decision.Result, error) {
	ctx, span := m.tracer.Start(ctx, "decision.evaluate", trace.WithAttributes(
		attribute.String("decision.model_id", id),
		attribute.Int("decision.facts", len(facts)),
	))
	defer span.End()

	start := time.Now()
	res, err := ev.Evaluate(facts, exports)
	elapsed := time.Since(start)

	m.metrics.ObserveEvaluation(id, err, elapsed)

	outcome, kind := metrics.OutcomeSuccess, ""
	var result map[string]string
	if err != nil {
		outcome, kind = metrics.OutcomeError, errorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
	} else {
		result = res.Values
		span.SetAttributes(attribute.Int("decision.steps", len(res.Trace)))
	}

	if m.publisher != nil {
		if perr := m.publisher.Publish(ctx, audit.NewEvent(id, outcome, kind, result, elapsed)); perr != nil {
			m.logger.WarnContext(ctx, "failed to publish audit event", "model_id", id, "error", perr)
		}
	}
	return res, err
}

func errorKind(err error) string {
	var de *decision.Error
	if errors.As(err, &de) {
		return string(de.Kind)
	}
	return "Internal"
}
