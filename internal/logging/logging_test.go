package logging

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestConsoleHandler(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo, true).With("svc", "auditd")

	log.Debug("hidden")
	log.WithGroup("exam").Info("started", "audit", "x1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO: started")
	assert.Contains(t, out, "svc=auditd")
	assert.Contains(t, out, "exam.audit=x1")
}

func TestPlainLogger(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelWarn, false).Warn("careful", "n", 3)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "n=3")
}

func TestRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, false)
	h := middleware.RequestID(Requests(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audits/a1", nil))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "path=/audits/a1")
	assert.Contains(t, out, "status=404")
	assert.Contains(t, out, "bytes=4")
	assert.Contains(t, out, "request_id=")
}
