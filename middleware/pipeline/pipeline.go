// Package pipeline compõe os estágios de admissão numa ordem fixa:
//
//	request logger -> headers -> recoverer -> scanner -> rate limit -> concorrência -> handler
//
// O injetor de headers fica por fora dos estágios que rejeitam, então 400,
// 429, 503 e o 500 de um panic também saem com os headers de segurança.
package pipeline

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"admission-gateway/middleware/headers"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/requestlog"
	"admission-gateway/middleware/threatscan"
)

type Options struct {
	// Logger é a base do logger por requisição; os estágios usam logging.FromContext.
	Logger *slog.Logger
	// Identity é compartilhada por logger, scanner e limiter.
	// Padrão: ratelimit.DefaultKeyFunc("", true).
	Identity ratelimit.KeyFunc

	Headers headers.Injector
	// Scanner nil desliga o estágio.
	Scanner *threatscan.Options
	// Limiter nil desliga o estágio.
	Limiter     *ratelimit.Options
	Concurrency ratelimit.ConcurrencyOptions

	DisableRequestLog bool
}

type Composer struct {
	middlewares chi.Middlewares
}

func New(opts Options) *Composer {
	if opts.Identity == nil {
		opts.Identity = ratelimit.DefaultKeyFunc("", true)
	}

	var mws chi.Middlewares
	if !opts.DisableRequestLog {
		mws = append(mws, requestlog.RequestLogger(opts.Logger, opts.Identity))
	}
	mws = append(mws, headers.Middleware(opts.Headers), requestlog.Recoverer())

	if opts.Scanner != nil {
		scan := *opts.Scanner
		if scan.Identity == nil {
			scan.Identity = opts.Identity
		}
		mws = append(mws, threatscan.Middleware(scan))
	}

	if opts.Limiter != nil {
		lim := *opts.Limiter
		if lim.KeyFn == nil {
			lim.KeyFn = opts.Identity
		}
		mws = append(mws, ratelimit.Middleware(lim))
	}

	if opts.Concurrency.Max > 0 || opts.Concurrency.Pool != nil {
		mws = append(mws, ratelimit.ConcurrencyMiddleware(opts.Concurrency))
	}

	return &Composer{middlewares: mws}
}

// Middlewares expõe a cadeia para router.Use.
func (c *Composer) Middlewares() chi.Middlewares { return c.middlewares }

func (c *Composer) Handler(next http.Handler) http.Handler {
	return chi.Chain(c.middlewares...).Handler(next)
}
