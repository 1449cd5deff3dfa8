package ratelimit

import (
	"net/http"
	"time"

	"admission-gateway/internal/httperr"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
	// Pool substitui o semáforo padrão (infra.ChanPool com capacidade Max).
	Pool domain.SlotPool
}

// ConcurrencyMiddleware limita requisições em voo. Sem vaga dentro do
// timeout, responde 503 JSON.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		opts.Pool = infra.NewChanPool(opts.Max)
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				httperr.Write(w, http.StatusServiceUnavailable, httperr.Unavailable)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
