// Package app monta o pipeline de admissão a partir da Config: stores,
// sinks de eventos, estatísticas e o Composer. Usado pelos dois binários.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"admission-gateway/internal/config"
	"admission-gateway/middleware/events"
	"admission-gateway/middleware/headers"
	"admission-gateway/middleware/pipeline"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
	"admission-gateway/middleware/threatscan"
)

type App struct {
	Pipeline *pipeline.Composer
	// Stats em memória; nil a menos que Build receba WithMemoryStats.
	Stats *infra.MemoryStatsStore

	closers []func(context.Context) error
}

// Close libera recursos na ordem inversa da criação.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type buildOptions struct {
	memoryStats bool
}

type Option func(*buildOptions)

// WithMemoryStats liga o snapshot em memória (App.Stats), limitado por
// cfg.Stats.MaxRoutes. O gateway não usa; o example-server serve em /stats.
func WithMemoryStats() Option {
	return func(o *buildOptions) { o.memoryStats = true }
}

// Build conecta nos backends e monta o pipeline. Falhas de configuração e de
// backends obrigatórios são retornadas; o resto degrada com log.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	a := &App{}
	if bo.memoryStats {
		a.Stats = infra.NewMemoryStatsStore(
			infra.WithTrackKeys(cfg.Stats.TrackKeys),
			infra.WithMaxRoutes(cfg.Stats.MaxRoutes),
		)
	}

	resolver, err := cfg.Resolver()
	if err != nil {
		return nil, err
	}
	for _, r := range resolver.Rules() {
		logger.Info("rate tier",
			"class", string(r.Class),
			"prefix", r.Prefix,
			"max_requests", r.Policy.MaxRequests,
			"window", r.Policy.Window,
		)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

	counters := infra.NewRedisCounterStore(rdb)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err = counters.Ping(pingCtx)
	cancel()
	if err != nil {
		if cfg.Redis.Required {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		logger.Warn("redis unreachable at startup; continuing with failure policy",
			"addr", cfg.Redis.Addr, "failure_policy", string(cfg.Rate.FailurePolicy), "err", err)
	}

	var fanout statsFanout
	if a.Stats != nil {
		fanout = append(fanout, a.Stats)
	}
	if cfg.Stats.Enabled {
		fanout = append(fanout, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		))
	}
	var stats domain.StatsStore
	if len(fanout) > 0 {
		stats = fanout
	}

	sink, err := a.buildSinks(ctx, cfg, logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	svc := application.Service{
		Store:        counters,
		Resolver:     resolver,
		OnFailure:    cfg.Rate.FailurePolicy,
		StoreTimeout: cfg.Rate.StoreTimeout,
		KeyPrefix:    cfg.Rate.KeyPrefix,
	}
	if cfg.Rate.FailurePolicy == domain.FailFallback {
		svc.Fallback = infra.NewMemoryCounterStore(infra.WithMaxKeys(cfg.Rate.FallbackMaxKeys))
	}

	popts := pipeline.Options{
		Logger:   logger,
		Identity: ratelimit.DefaultKeyFunc(cfg.Rate.KeyHeader, cfg.Rate.TrustForwarded),
		Headers:  headers.Injector{},
		Concurrency: ratelimit.ConcurrencyOptions{
			Max:            cfg.Concurrency.Max,
			AcquireTimeout: cfg.Concurrency.Timeout,
		},
	}
	if cfg.Scan.Enabled {
		popts.Scanner = &threatscan.Options{Events: sink, Stats: stats}
	}
	if cfg.Rate.Enabled {
		popts.Limiter = &ratelimit.Options{
			Service:             svc,
			Stats:               stats,
			Events:              sink,
			AddRateLimitHeaders: cfg.Rate.AddHeaders,
		}
	}
	a.Pipeline = pipeline.New(popts)
	return a, nil
}

// buildSinks: log SECURITY (+ Postgres se configurado) atrás de uma fila
// assíncrona e de um throttle por identidade.
func (a *App) buildSinks(ctx context.Context, cfg config.Config, logger *slog.Logger) (events.Sink, error) {
	sinks := events.MultiSink{events.NewLogSink(logger)}

	if cfg.Events.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Events.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect events database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })

		pg := events.NewPostgresSink(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, pg)
	}

	async := events.NewAsyncSink(sinks, cfg.Events.Buffer, events.WithAsyncLogger(logger))
	a.closers = append(a.closers, async.Close)

	throttle := infra.NewThrottle(cfg.Events.PerIdentityRPS, cfg.Events.Burst)
	janitorCtx, stop := context.WithCancel(context.Background())
	throttle.StartJanitor(janitorCtx)
	a.closers = append(a.closers, func(context.Context) error { stop(); return nil })

	return events.NewThrottledSink(async, throttle), nil
}

type statsFanout []domain.StatsStore

func (f statsFanout) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
