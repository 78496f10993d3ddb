// Package logger provides the process-wide structured logger: JSON on stdout
// by default, or an OpenTelemetry log bridge when OTEL_ENABLED=true.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

var (
	Logger          *slog.Logger
	errorSampleRate atomic.Int32
	programLevel    = new(slog.LevelVar)
	shutdownFunc    func(context.Context) error
)

// Counters exported on the health endpoint. They are incremented even when
// the log line itself is sampled away.
var (
	TotalErrors    atomic.Int64
	TotalWarnings  atomic.Int64
	Total5xxErrors atomic.Int64
	Total4xxErrors atomic.Int64
	Total400Errors atomic.Int64
	Total404Errors atomic.Int64
	Total413Errors atomic.Int64
	Total422Errors atomic.Int64
	SlowRequests   atomic.Int64
	ReloadFailures atomic.Int64
)

func init() {
	errorSampleRate.Store(1)
	programLevel.Set(slog.LevelInfo)
	setupJSONLogging()
}

// Setup configures the logger from LOG_LEVEL, ERROR_SAMPLE_RATE and
// OTEL_ENABLED. It is called once from main; until then a JSON logger at
// INFO is installed.
func Setup(ctx context.Context, serviceName string) {
	SetLevelFromEnv("LOG_LEVEL", LevelInfo)

	if s := os.Getenv("ERROR_SAMPLE_RATE"); s != "" {
		if rate, err := strconv.Atoi(s); err == nil && rate > 0 {
			errorSampleRate.Store(int32(rate))
		}
	}

	if strings.ToLower(os.Getenv("OTEL_ENABLED")) != "true" {
		setupJSONLogging()
		return
	}

	shutdown, err := setupOTELLogging(ctx, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup OTEL logging, falling back to JSON: %v\n", err)
		setupJSONLogging()
		return
	}
	shutdownFunc = shutdown
}

func setupJSONLogging() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	handler := &levelHandler{
		level:   programLevel,
		handler: otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)),
	}
	Logger = slog.New(handler)
	slog.SetDefault(Logger)

	return provider.Shutdown, nil
}

// levelHandler applies programLevel to a handler that has no level option.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL log pipeline, if one is active.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// Component returns a child logger tagged with the component name.
func Component(name string) *slog.Logger {
	return Logger.With("component", name)
}

func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// SetLevelFromEnv sets the level from envVarName, using defaultLevel when
// the variable is unset or invalid.
func SetLevelFromEnv(envVarName string, defaultLevel slog.Level) {
	level, err := ParseLevel(os.Getenv(envVarName))
	if err != nil {
		level = defaultLevel
	}
	programLevel.Set(level)
}

// shouldSample keeps 1 out of every ERROR_SAMPLE_RATE warnings and errors.
func shouldSample() bool {
	rate := errorSampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a sampled warning. The warning counter is always incremented.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs a sampled error. The error counter is always incremented.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs and exits after flushing the OTEL pipeline.
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

// ErrorHttp5xx counts a server-side failure.
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx counts a client-side failure by status.
func WarnHttp4xx(status int) {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)

	switch status {
	case 400:
		Total400Errors.Add(1)
	case 404:
		Total404Errors.Add(1)
	case 413:
		Total413Errors.Add(1)
	case 422:
		Total422Errors.Add(1)
	}
}

func WarnSlowRequest() {
	SlowRequests.Add(1)
	TotalWarnings.Add(1)
}

// WarnReloadFailure counts a model reload that was rejected.
func WarnReloadFailure() {
	ReloadFailures.Add(1)
	TotalWarnings.Add(1)
}

// Counters returns a snapshot of the counters for the health endpoint.
func Counters() map[string]int64 {
	return map[string]int64{
		"errors":          TotalErrors.Load(),
		"warnings":        TotalWarnings.Load(),
		"http_5xx":        Total5xxErrors.Load(),
		"http_4xx":        Total4xxErrors.Load(),
		"http_400":        Total400Errors.Load(),
		"http_404":        Total404Errors.Load(),
		"http_413":        Total413Errors.Load(),
		"http_422":        Total422Errors.Load(),
		"slow_requests":   SlowRequests.Load(),
		"reload_failures": ReloadFailures.Load(),
	}
}
