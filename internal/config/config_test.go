package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenAddr != ":8080" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Rate.FailurePolicy != domain.FailFallback {
		t.Fatalf("expected fallback by default, got %q", cfg.Rate.FailurePolicy)
	}
	if cfg.Rate.StoreTimeout != 150*time.Millisecond {
		t.Fatalf("expected 150ms store timeout, got %s", cfg.Rate.StoreTimeout)
	}
	if len(cfg.Rate.Rules) != 2 || cfg.Rate.Rules[0].Policy.MaxRequests != 5 || cfg.Rate.Rules[1].Policy.MaxRequests != 100 {
		t.Fatalf("unexpected rules: %+v", cfg.Rate.Rules)
	}
	if cfg.Rate.Default.Policy.MaxRequests != 200 {
		t.Fatalf("unexpected default rule: %+v", cfg.Rate.Default)
	}
	if len(cfg.Rate.Exempt) != 3 {
		t.Fatalf("unexpected exempt list: %v", cfg.Rate.Exempt)
	}
	if !cfg.Scan.Enabled || !cfg.Rate.Enabled || !cfg.Rate.TrustForwarded {
		t.Fatalf("expected stages enabled by default")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"RATE_AUTH_MAX":        "3",
		"RATE_AUTH_WINDOW":     "30",
		"RATE_API_WINDOW":      "2m",
		"RATE_FAILURE_POLICY":  "closed",
		"RATE_EXEMPT_PREFIXES": " /healthz , ,/ready",
		"SCAN_ENABLED":         "false",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := cfg.Rate.Rules[0].Policy; p.MaxRequests != 3 || p.Window != 30*time.Second {
		t.Fatalf("unexpected auth policy: %+v", p)
	}
	if cfg.Rate.Rules[1].Policy.Window != 2*time.Minute {
		t.Fatalf("unexpected api window: %s", cfg.Rate.Rules[1].Policy.Window)
	}
	if cfg.Rate.FailurePolicy != domain.FailClosed || cfg.Scan.Enabled {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if strings.Join(cfg.Rate.Exempt, "|") != "/healthz|/ready" {
		t.Fatalf("unexpected exempt list: %v", cfg.Rate.Exempt)
	}
}

func TestFromEnv_RejectsInvalidValues(t *testing.T) {
	_, err := FromEnv(lookupFrom(map[string]string{
		"REDIS_DB":            "zero",
		"RATE_FAILURE_POLICY": "sometimes",
		"RATE_AUTH_MAX":       "0",
	}))
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"REDIS_DB", "RATE_FAILURE_POLICY"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %v", want, err)
		}
	}
	if !errors.Is(err, domain.ErrInvalidPolicy) {
		t.Fatalf("expected invalid policy for RATE_AUTH_MAX=0, got %v", err)
	}
}

const samplePolicy = `
tiers:
  - class: login
    prefix: /api/auth/login
    max_requests: 3
    window: 30s
  - class: api
    prefix: /api/
    max_requests: 50
    window: 60
default:
  class: other
  max_requests: 500
  window: 1m
exempt:
  - /healthz
`

func TestParsePolicy(t *testing.T) {
	pf, err := ParsePolicy(strings.NewReader(samplePolicy))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pf.Rules) != 2 || pf.Rules[0].Class != "login" || pf.Rules[0].Policy.Window != 30*time.Second {
		t.Fatalf("unexpected rules: %+v", pf.Rules)
	}
	if pf.Rules[1].Policy.Window != time.Minute {
		t.Fatalf("expected integer window in seconds, got %s", pf.Rules[1].Policy.Window)
	}
	if pf.Default.Class != "other" || pf.Default.Policy.MaxRequests != 500 {
		t.Fatalf("unexpected default: %+v", pf.Default)
	}
	if len(pf.Exempt) != 1 || pf.Exempt[0] != "/healthz" {
		t.Fatalf("unexpected exempt: %v", pf.Exempt)
	}
}

func TestParsePolicy_RejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"unknown field": "tiers:\n  - class: a\n    prefix: /a\n    max_requests: 1\n    window: 1s\n    burst: 3\n",
		"zero max":      "tiers:\n  - class: a\n    prefix: /a\n    max_requests: 0\n    window: 1s\n",
		"short window":  "tiers:\n  - class: a\n    prefix: /a\n    max_requests: 1\n    window: 500ms\n",
		"bad window":    "tiers:\n  - class: a\n    prefix: /a\n    max_requests: 1\n    window: soon\n",
		"no prefix":     "tiers:\n  - class: a\n    max_requests: 1\n    window: 1s\n",
		"duplicate":     "tiers:\n  - {class: a, prefix: /a, max_requests: 1, window: 1s}\n  - {class: a, prefix: /b, max_requests: 1, window: 1s}\n",
		"not yaml":      "tiers: [",
	}
	for name, doc := range cases {
		if _, err := ParsePolicy(strings.NewReader(doc)); !errors.Is(err, domain.ErrInvalidPolicy) {
			t.Fatalf("%s: expected ErrInvalidPolicy, got %v", name, err)
		}
	}
}

func TestFromEnv_PolicyFileReplacesTiers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(samplePolicy), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := FromEnv(lookupFrom(map[string]string{"RATE_POLICY_FILE": path}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resolver, err := cfg.Resolver()
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	rule, exempt := resolver.Resolve("/api/auth/login")
	if exempt || rule.Class != "login" {
		t.Fatalf("expected login tier, got %+v exempt=%v", rule, exempt)
	}
	if _, exempt := resolver.Resolve("/healthz"); !exempt {
		t.Fatalf("expected /healthz exempt")
	}
}

func TestFromEnv_MissingPolicyFile(t *testing.T) {
	_, err := FromEnv(lookupFrom(map[string]string{"RATE_POLICY_FILE": filepath.Join(t.TempDir(), "nope.yaml")}))
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
