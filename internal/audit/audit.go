// Package audit emits one event per model evaluation.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event describes a finished evaluation.
type Event struct {
	ID         string            `json:"id"`
	ModelID    string            `json:"modelId"`
	Outcome    string            `json:"outcome"`
	ErrorKind  string            `json:"errorKind,omitempty"`
	Result     map[string]string `json:"result,omitempty"`
	DurationMs float64           `json:"durationMs"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(modelID, outcome, errorKind string, result map[string]string, d time.Duration) Event {
	return Event{
		ID:         uuid.NewString(),
		ModelID:    modelID,
		Outcome:    outcome,
		ErrorKind:  errorKind,
		Result:     result,
		DurationMs: float64(d.Microseconds()) / 1000.0,
		Timestamp:  time.Now().UTC(),
	}
}

// Publisher delivers audit events. Publish must not block the caller on
// slow sinks.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "audit")}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "decision evaluated",
		"event_id", e.ID,
		"model_id", e.ModelID,
		"outcome", e.Outcome,
		"error_kind", e.ErrorKind,
		"duration_ms", e.DurationMs,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
