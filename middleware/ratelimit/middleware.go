package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"admission-gateway/internal/httperr"
	"admission-gateway/internal/logging"
	"admission-gateway/middleware/events"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
)

type Options struct {
	// Service traz store, fallback, tiers e política de falha. Zero value
	// usa os tiers padrão e permite tudo (sem store).
	Service application.Service

	Stats domain.StatsStore
	// Events recebe RATE_LIMIT_EXCEEDED / STORE_UNAVAILABLE; padrão: LogSink.
	Events events.Sink
	// Logger é opcional; sem ele usa o logger da requisição (logging.FromContext).
	Logger *slog.Logger

	KeyFn          KeyFunc
	KeyHeader      string
	TrustForwarded bool

	// AddRateLimitHeaders emite X-RateLimit-Limit/Remaining/Class.
	AddRateLimitHeaders bool
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustForwarded)
	}
	if opts.Service.Resolver == nil {
		opts.Service.Resolver = application.DefaultResolver()
	}
	if opts.Events == nil {
		opts.Events = events.NewLogSink(opts.Logger)
	}
	svc := opts.Service

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := opts.KeyFn(r)
			logger := opts.Logger
			if logger == nil {
				logger = logging.FromContext(ctx)
			}

			dec := svc.Decide(ctx, domain.Key(key), r.URL.Path)
			if dec.Exempt {
				next.ServeHTTP(w, r)
				return
			}
			if dec.Degraded {
				logger.Warn("rate limit store unavailable",
					"identity", key,
					"class", string(dec.Class),
					"failure_policy", string(failurePolicy(svc.OnFailure)),
					"err", dec.Err,
				)
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				w.Header().Set("X-RateLimit-Class", string(dec.Class))
			}

			outcome := domain.OutcomeAllowed
			if !dec.Allowed {
				outcome = domain.OutcomeLimited
			}
			if opts.Stats != nil {
				// best-effort: falha de estatística não derruba request
				_ = opts.Stats.Record(ctx, domain.StatsEvent{
					Key:     domain.Key(key),
					Class:   dec.Class,
					Outcome: outcome,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
			}

			if dec.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			ev := events.SecurityEvent{
				Type:      events.TypeRateLimitExceeded,
				Identity:  key,
				Method:    r.Method,
				Path:      r.URL.Path,
				Detail:    string(dec.Class),
				RequestID: logging.RequestIDFromContext(ctx),
			}
			status, body := http.StatusTooManyRequests, httperr.RateLimited
			if dec.Degraded && failurePolicy(svc.OnFailure) == domain.FailClosed {
				ev.Type = events.TypeStoreUnavailable
				status, body = http.StatusServiceUnavailable, httperr.Unavailable
			}
			if err := opts.Events.Record(ctx, ev); err != nil {
				logger.Warn("security event not recorded", "type", string(ev.Type), "err", err)
			}

			httperr.WriteRetry(w, status, dec.RetryAfterSeconds(), body)
		})
	}
}

func failurePolicy(p domain.FailurePolicy) domain.FailurePolicy {
	if p == "" {
		return domain.FailFallback
	}
	return p
}
