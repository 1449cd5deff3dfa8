// Package config centraliza o carregamento de configurações: variáveis de
// ambiente (com .env opcional via godotenv) e o arquivo YAML de políticas.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
)

type Config struct {
	ListenAddr  string
	UpstreamURL string
	LogLevel    string

	Redis       RedisConfig
	Rate        RateConfig
	Scan        ScanConfig
	Concurrency ConcurrencyConfig
	Stats       StatsConfig
	Events      EventsConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Required faz o startup falhar se o ping não responder.
	Required bool
}

type RateConfig struct {
	Enabled         bool
	KeyPrefix       string
	KeyHeader       string
	StoreTimeout    time.Duration
	FailurePolicy   domain.FailurePolicy
	FallbackMaxKeys int
	PolicyFile      string

	Rules   []domain.Rule
	Default domain.Rule
	Exempt  []string

	TrustForwarded bool
	AddHeaders     bool
}

type ScanConfig struct {
	Enabled bool
}

type ConcurrencyConfig struct {
	Max     int
	Timeout time.Duration
}

type StatsConfig struct {
	Enabled   bool
	Prefix    string
	TTL       time.Duration
	Bucket    string
	TrackKeys bool
	// MaxRoutes limita rotas/chaves do snapshot em memória (/stats).
	MaxRoutes int
}

type EventsConfig struct {
	DatabaseURL    string
	Buffer         int
	PerIdentityRPS float64
	Burst          int
}

const defaultExempt = "/actuator/prometheus,/metrics,/healthz"

// Load lê .env (se existir) e o ambiente. Valores que não fazem parse são
// erro, não caem no padrão em silêncio.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv monta a Config a partir de uma função de lookup (os.LookupEnv em produção).
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := &env{lookup: lookup}

	cfg := Config{
		ListenAddr:  e.str("LISTEN_ADDR", ":8080"),
		UpstreamURL: e.str("UPSTREAM_URL", ""),
		LogLevel:    e.str("LOG_LEVEL", "info"),
		Redis: RedisConfig{
			Addr:     e.str("REDIS_ADDR", "localhost:6379"),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.integer("REDIS_DB", 0),
			Required: e.boolean("REDIS_REQUIRED", false),
		},
		Rate: RateConfig{
			Enabled:         e.boolean("RATE_ENABLED", true),
			KeyPrefix:       e.str("RATE_KEY_PREFIX", application.DefaultKeyPrefix),
			KeyHeader:       e.str("RATE_KEY_HEADER", ""),
			StoreTimeout:    e.duration("RATE_STORE_TIMEOUT", application.DefaultStoreTimeout),
			FallbackMaxKeys: e.integer("RATE_FALLBACK_MAX_KEYS", 100000),
			PolicyFile:      e.str("RATE_POLICY_FILE", ""),
			TrustForwarded:  e.boolean("TRUST_XFF", true),
			AddHeaders:      e.boolean("ADD_RATELIMIT_HEADERS", false),
		},
		Scan: ScanConfig{Enabled: e.boolean("SCAN_ENABLED", true)},
		Concurrency: ConcurrencyConfig{
			Max:     e.integer("CONCURRENCY_MAX", 100),
			Timeout: e.duration("CONCURRENCY_TIMEOUT", 0),
		},
		Stats: StatsConfig{
			Enabled:   e.boolean("STATS_ENABLED", false),
			Prefix:    e.str("STATS_PREFIX", "admission:stats"),
			TTL:       e.duration("STATS_TTL", 24*time.Hour),
			Bucket:    e.str("STATS_BUCKET", "minute"),
			TrackKeys: e.boolean("STATS_TRACK_KEYS", false),
			MaxRoutes: e.integer("STATS_MAX_ROUTES", 1000),
		},
		Events: EventsConfig{
			DatabaseURL:    e.str("EVENTS_DATABASE_URL", ""),
			Buffer:         e.integer("EVENTS_BUFFER", 1024),
			PerIdentityRPS: e.float("EVENTS_PER_IDENTITY_RPS", 1),
			Burst:          e.integer("EVENTS_PER_IDENTITY_BURST", 5),
		},
	}

	policy, err := domain.ParseFailurePolicy(e.str("RATE_FAILURE_POLICY", string(domain.FailFallback)))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("RATE_FAILURE_POLICY: %w", err))
	}
	cfg.Rate.FailurePolicy = policy

	rules := application.DefaultRules()
	rules[0].Policy = e.policy("RATE_AUTH", rules[0].Policy)
	rules[1].Policy = e.policy("RATE_API", rules[1].Policy)
	def := application.DefaultRule()
	def.Policy = e.policy("RATE_DEFAULT", def.Policy)
	cfg.Rate.Rules, cfg.Rate.Default = rules, def
	cfg.Rate.Exempt = splitList(e.str("RATE_EXEMPT_PREFIXES", defaultExempt))

	errs := e.errs
	if cfg.Rate.PolicyFile != "" {
		pf, err := LoadPolicyFile(cfg.Rate.PolicyFile)
		if err != nil {
			return Config{}, errors.Join(append(errs, err)...)
		}
		cfg.Rate.Rules, cfg.Rate.Default, cfg.Rate.Exempt = pf.Rules, pf.Default, pf.Exempt
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.Rate.StoreTimeout <= 0 {
		errs = append(errs, errors.New("RATE_STORE_TIMEOUT must be > 0"))
	}
	if c.Rate.FallbackMaxKeys <= 0 {
		errs = append(errs, errors.New("RATE_FALLBACK_MAX_KEYS must be > 0"))
	}
	if c.Events.Buffer <= 0 {
		errs = append(errs, errors.New("EVENTS_BUFFER must be > 0"))
	}
	if c.Events.PerIdentityRPS <= 0 || c.Events.Burst <= 0 {
		errs = append(errs, errors.New("EVENTS_PER_IDENTITY_RPS and EVENTS_PER_IDENTITY_BURST must be > 0"))
	}
	if _, err := c.Resolver(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Resolver monta o PolicyResolver com os tiers e isenções configurados.
func (c Config) Resolver() (*application.PolicyResolver, error) {
	return application.NewPolicyResolver(c.Rate.Rules, c.Rate.Default, c.Rate.Exempt)
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) raw(k string) (string, bool) {
	v, ok := e.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(k, def string) string {
	if v, ok := e.raw(k); ok {
		return v
	}
	return def
}

func (e *env) integer(k string, def int) int {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return i
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return f
}

func (e *env) boolean(k string, def bool) bool {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return b
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	d, err := parseWindow(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return d
}

// policy lê <prefix>_MAX e <prefix>_WINDOW.
func (e *env) policy(prefix string, def domain.Policy) domain.Policy {
	return domain.Policy{
		MaxRequests: e.integer(prefix+"_MAX", def.MaxRequests),
		Window:      e.duration(prefix+"_WINDOW", def.Window),
	}
}

// parseWindow aceita durações Go ("60s", "1m") ou segundos inteiros ("60").
func parseWindow(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
