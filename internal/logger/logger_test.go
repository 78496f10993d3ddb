package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warning", LevelWarning, false},
		{"WARN", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestSetLevelFromEnv(t *testing.T) {
	defer SetLevel(LevelInfo)

	t.Setenv("TEST_LOG_LEVEL", "debug")
	SetLevelFromEnv("TEST_LOG_LEVEL", LevelError)
	assert.Equal(t, LevelDebug, GetLevel())

	t.Setenv("TEST_LOG_LEVEL", "nonsense")
	SetLevelFromEnv("TEST_LOG_LEVEL", LevelError)
	assert.Equal(t, LevelError, GetLevel())
}

func TestHTTPCounters(t *testing.T) {
	before := Counters()

	WarnHttp4xx(404)
	WarnHttp4xx(422)
	ErrorHttp5xx()
	WarnReloadFailure()

	after := Counters()
	assert.Equal(t, before["http_4xx"]+2, after["http_4xx"])
	assert.Equal(t, before["http_404"]+1, after["http_404"])
	assert.Equal(t, before["http_422"]+1, after["http_422"])
	assert.Equal(t, before["http_5xx"]+1, after["http_5xx"])
	assert.Equal(t, before["reload_failures"]+1, after["reload_failures"])
	assert.Equal(t, before["warnings"]+3, after["warnings"])
}
