package requestlog

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"admission-gateway/internal/logging"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestLogger_AttachesLoggerAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := logging.New("info", &buf)

	var seenID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = logging.RequestIDFromContext(r.Context())
		logging.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	RequestLogger(base, func(*http.Request) string { return "10.0.0.1" })(next).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/1", nil))

	if seenID == "" || rec.Header().Get(HeaderRequestID) != seenID {
		t.Fatalf("expected request id in context and response header, got %q / %q", seenID, rec.Header().Get(HeaderRequestID))
	}

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if lines[0]["request_id"] != seenID || lines[0]["client"] != "10.0.0.1" {
		t.Fatalf("handler log missing request attrs: %v", lines[0])
	}
	if lines[1]["msg"] != "request completed" || lines[1]["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected completion line: %v", lines[1])
	}
}

func TestRequestLogger_ReusesInboundRequestID(t *testing.T) {
	var buf bytes.Buffer
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, "abc-123")

	rec := httptest.NewRecorder()
	RequestLogger(logging.New("info", &buf), nil)(http.NotFoundHandler()).ServeHTTP(rec, r)

	if rec.Header().Get(HeaderRequestID) != "abc-123" {
		t.Fatalf("expected inbound request id to be kept")
	}
}

func TestRequestLogger_RecoversPanicAsJSON500(t *testing.T) {
	var buf bytes.Buffer
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	RequestLogger(logging.New("info", &buf), nil)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"Internal server error"`) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("panic value leaked to client")
	}
}

func TestRecoverer_UsesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := RequestLogger(logging.New("info", &buf), nil)(Recoverer()(next))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var panicLine map[string]any
	for _, line := range decodeLines(t, &buf) {
		if line["msg"] == "panic recovered" {
			panicLine = line
		}
	}
	if panicLine == nil || panicLine["request_id"] == nil || panicLine["path"] != "/x" {
		t.Fatalf("expected panic logged with request attrs, got %s", buf.String())
	}
}
