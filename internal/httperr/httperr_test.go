package httperr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteRetry(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRetry(rec, http.StatusTooManyRequests, 2, RateLimited)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type, got %q", got)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "Rate limit exceeded" || body["message"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestWriteOmitsEmptyMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, http.StatusBadRequest, InvalidInput)
	if got := rec.Body.String(); got != "{\"error\":\"Invalid input detected\"}\n" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestWriteRetryFloorsAtOneSecond(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRetry(rec, http.StatusServiceUnavailable, 0, Unavailable)
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}
}
