package threatscan

import (
	"log/slog"
	"net/http"
	"time"

	"admission-gateway/internal/httperr"
	"admission-gateway/internal/logging"
	"admission-gateway/middleware/events"
	"admission-gateway/middleware/ratelimit/domain"
)

type Options struct {
	// Scanner padrão: New() com DefaultSignatures.
	Scanner *Scanner
	// Events recebe um evento por campo suspeito; padrão: LogSink.
	Events events.Sink
	Stats  domain.StatsStore
	Logger *slog.Logger
	// Identity resolve a identidade do cliente para os eventos.
	Identity func(r *http.Request) string
}

// Middleware rejeita com 400 requisições cuja query ou path casem com alguma
// assinatura. O corpo não revela qual assinatura casou.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Scanner == nil {
		opts.Scanner = New()
	}
	if opts.Events == nil {
		opts.Events = events.NewLogSink(opts.Logger)
	}
	if opts.Identity == nil {
		opts.Identity = func(r *http.Request) string { return r.RemoteAddr }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			findings := opts.Scanner.ScanAll(r.URL.Path, r.URL.Query())
			if len(findings) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			identity := opts.Identity(r)
			requestID := logging.RequestIDFromContext(ctx)
			for _, f := range findings {
				err := opts.Events.Record(ctx, events.SecurityEvent{
					Type:      events.Type(f.Category),
					Identity:  identity,
					Method:    r.Method,
					Path:      r.URL.Path,
					Field:     f.Field,
					Detail:    f.Value,
					RequestID: requestID,
				})
				if err != nil {
					logger := opts.Logger
					if logger == nil {
						logger = logging.FromContext(ctx)
					}
					logger.Warn("security event not recorded", "category", string(f.Category), "err", err)
				}
			}

			if opts.Stats != nil {
				_ = opts.Stats.Record(ctx, domain.StatsEvent{
					Key:     domain.Key(identity),
					Outcome: domain.OutcomeFlagged,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
			}

			// a resposta segue o primeiro campo suspeito
			body := httperr.InvalidInput
			if findings[0].Location == LocationPath {
				body = httperr.InvalidPath
			}
			httperr.Write(w, http.StatusBadRequest, body)
		})
	}
}
