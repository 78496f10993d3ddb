package main

import (
	"encoding/json"
	"time"

	"github.com/liamcoop/decisions/adapter"
	"github.com/liamcoop/decisions/decision"
	"github.com/liamcoop/decisions/registry"
	"github.com/liamcoop/decisions/store"
)

// API request and response models

// EvaluateRequest evaluates either a loaded model (ModelID) or an inline
// model document (Model) against one fact record.
type EvaluateRequest struct {
	ModelID string          `json:"modelId,omitempty" example:"routing"`
	Model   json.RawMessage `json:"model,omitempty"`
	Facts   map[string]any  `json:"facts"`
	Exports []string        `json:"exports,omitempty" example:"route,action"`
	Trace   bool            `json:"trace,omitempty"`
}

// EvaluateResponse carries the exported values and, on request, the
// per-decision trace.
type EvaluateResponse struct {
	ModelID    string            `json:"modelId"`
	Result     map[string]string `json:"result"`
	Trace      []decision.Step   `json:"trace,omitempty"`
	DurationMs float64           `json:"durationMs"`
}

// BatchEvaluateRequest evaluates one loaded model against many records.
type BatchEvaluateRequest struct {
	ModelID string           `json:"modelId" example:"routing"`
	Inputs  []map[string]any `json:"inputs"`
	Exports []string         `json:"exports,omitempty"`
}

// BatchItem is the outcome for one input, in input order.
type BatchItem struct {
	Index  int                  `json:"index"`
	Result map[string]string    `json:"result,omitempty"`
	Error  *adapter.ErrorObject `json:"error,omitempty"`
}

type BatchEvaluateResponse struct {
	ModelID   string      `json:"modelId"`
	Results   []BatchItem `json:"results"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// OrchestrationRequest runs the four-stage orchestration preset.
type OrchestrationRequest struct {
	Model json.RawMessage `json:"model"`
	Input json.RawMessage `json:"input"`
}

// CreateModelRequest stores a new model. Active defaults to true.
type CreateModelRequest struct {
	ID         string          `json:"id,omitempty" example:"routing"`
	Name       string          `json:"name" example:"Request routing"`
	Definition json.RawMessage `json:"definition"`
	Active     *bool           `json:"active,omitempty"`
}

// UpdateModelRequest replaces the given fields of a stored model.
type UpdateModelRequest struct {
	Name       string          `json:"name,omitempty"`
	Definition json.RawMessage `json:"definition,omitempty"`
	Active     *bool           `json:"active,omitempty"`
}

// ModelResponse describes a model and, when loaded, its evaluation plan.
type ModelResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Version    int             `json:"version"`
	Source     string          `json:"source"`
	Active     bool            `json:"active"`
	Loaded     bool            `json:"loaded"`
	Order      []string        `json:"order,omitempty"`
	Exports    []string        `json:"exports,omitempty"`
	Definition json.RawMessage `json:"definition,omitempty"`
	CreatedAt  *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt  *time.Time      `json:"updatedAt,omitempty"`
}

type ModelsListResponse struct {
	Models []ModelResponse `json:"models"`
}

func modelFromStored(sm *store.StoredModel, lm *registry.LoadedModel) ModelResponse {
	resp := ModelResponse{
		ID:         sm.ID,
		Name:       sm.Name,
		Version:    sm.Version,
		Source:     registry.SourceStore,
		Active:     sm.Active,
		Definition: sm.Definition,
		CreatedAt:  &sm.CreatedAt,
		UpdatedAt:  &sm.UpdatedAt,
	}
	if lm != nil {
		resp.Loaded = true
		resp.Order = lm.Evaluator.Order()
		resp.Exports = lm.Evaluator.Exports()
	}
	return resp
}

func modelFromLoaded(lm *registry.LoadedModel) ModelResponse {
	return ModelResponse{
		ID:      lm.ID,
		Name:    lm.Name,
		Version: lm.Version,
		Source:  lm.Source,
		Active:  true,
		Loaded:  true,
		Order:   lm.Evaluator.Order(),
		Exports: lm.Evaluator.Exports(),
	}
}
