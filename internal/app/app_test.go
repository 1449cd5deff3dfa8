package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"admission-gateway/internal/config"
	"admission-gateway/internal/logging"
)

func testConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.FromEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestBuild_EndToEndWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, map[string]string{
		"REDIS_ADDR":     mr.Addr(),
		"REDIS_REQUIRED": "true",
		"STATS_ENABLED":  "true",
	})

	var logs bytes.Buffer
	a, err := Build(context.Background(), cfg, logging.New("info", &logs), WithMemoryStats())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Close(ctx)
	}()

	h := a.Pipeline.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(target string) int {
		r := httptest.NewRequest(http.MethodPost, "http://example"+target, nil)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	for i := 0; i < 5; i++ {
		if code := do("/api/auth/login"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := do("/api/auth/login"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if !mr.Exists("rate_limit:auth:10.0.0.1") {
		t.Fatalf("expected counter key in redis, got %v", mr.Keys())
	}
	if code := do("/files?path=../../etc/passwd"); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}

	total := a.Stats.Total()
	if total.Allowed != 5 || total.Limited != 1 || total.Flagged != 1 {
		t.Fatalf("unexpected stats: %+v", total)
	}
	for _, class := range []string{`"class":"auth"`, `"class":"api"`, `"class":"default"`} {
		if !bytes.Contains(logs.Bytes(), []byte(class)) {
			t.Fatalf("expected startup log for tier %s, got %s", class, logs.String())
		}
	}
}

func TestBuild_RequiredRedisDown(t *testing.T) {
	addr := deadRedisAddr(t)

	cfg := testConfig(t, map[string]string{"REDIS_ADDR": addr, "REDIS_REQUIRED": "true"})
	if _, err := Build(context.Background(), cfg, logging.New("error", &bytes.Buffer{})); err == nil {
		t.Fatalf("expected startup error when redis is required and down")
	}
}

func TestBuild_OptionalRedisDownFallsBackToMemory(t *testing.T) {
	addr := deadRedisAddr(t)

	cfg := testConfig(t, map[string]string{"REDIS_ADDR": addr, "RATE_STORE_TIMEOUT": "50ms"})
	a, err := Build(context.Background(), cfg, logging.New("error", &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer func() { _ = a.Close(context.Background()) }()

	h := a.Pipeline.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		r := httptest.NewRequest(http.MethodPost, "http://example/api/auth/login", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	if codes[4] != http.StatusOK || codes[5] != http.StatusTooManyRequests {
		t.Fatalf("expected in-memory fallback to enforce the auth tier, got %v", codes)
	}
}

func deadRedisAddr(t *testing.T) string {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()
	return addr
}

func TestBuild_MemoryStatsAreOptIn(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, map[string]string{"REDIS_ADDR": mr.Addr()})

	a, err := Build(context.Background(), cfg, logging.New("error", &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer func() { _ = a.Close(context.Background()) }()

	if a.Stats != nil {
		t.Fatalf("expected no in-memory stats without WithMemoryStats")
	}

	h := a.Pipeline.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 50; i++ {
		r := httptest.NewRequest(http.MethodGet, "http://example/random/"+strconv.Itoa(i), nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}
