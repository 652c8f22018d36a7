package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{"debug level", "debug", logrus.DebugLevel},
		{"info level", "info", logrus.InfoLevel},
		{"warn level", "warn", logrus.WarnLevel},
		{"warning alias", "WARNING", logrus.WarnLevel},
		{"error level", "error", logrus.ErrorLevel},
		{"invalid level", "invalid", logrus.InfoLevel},
		{"empty level", "", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.level))
		})
	}
}

func TestNewJSONOutsideLocal(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "info", "production")

	log.Component("pipeline").Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "pipeline", entry["component"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "warn", "production")

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithRequestUsesHeaderID(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "info", "production")

	r := httptest.NewRequest("POST", "/upload_video", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	log.WithRequest(r).Info("request")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc-123", entry["req_id"])
	assert.Equal(t, "/upload_video", entry["path"])
	assert.Equal(t, "POST", entry["method"])
}

func TestRequestIDGeneratedOnce(t *testing.T) {
	r := httptest.NewRequest("GET", "/healthz", nil)

	first := RequestID(r)
	require.NotEmpty(t, first)
	assert.Equal(t, first, RequestID(r))
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "info", "production")

	assert.Same(t, log.Entry, log.WithError(nil))

	log.WithError(errors.New("boom")).Error("failed")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["error"])
}
