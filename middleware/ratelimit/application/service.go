package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

const (
	DefaultStoreTimeout = 150 * time.Millisecond
	DefaultKeyPrefix    = "rate_limit"
)

// Service concentra a regra de aplicação do rate limit (janela fixa).
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Zero values são válidos: sem Store tudo é permitido, sem Resolver usa os tiers padrão.
type Service struct {
	Store    domain.CounterStore
	Fallback domain.CounterStore
	Resolver *PolicyResolver

	OnFailure    domain.FailurePolicy
	StoreTimeout time.Duration
	KeyPrefix    string
}

func (s Service) Decide(ctx context.Context, key domain.Key, path string) domain.Decision {
	if s.Resolver == nil {
		s.Resolver = DefaultResolver()
	}
	if key == "" {
		key = "unknown"
	}

	rule, exempt := s.Resolver.Resolve(path)
	if exempt {
		return domain.Decision{Allowed: true, Class: rule.Class, Exempt: true}
	}
	if s.Store == nil {
		return domain.Decision{Allowed: true, Class: rule.Class, Limit: rule.Policy.MaxRequests}
	}

	counterKey := s.CounterKey(rule.Class, key)
	dec, err := s.window(ctx, s.Store, counterKey, rule)
	if err == nil {
		return dec
	}
	return s.degrade(ctx, counterKey, rule, err)
}

// CounterKey particiona os contadores por classe de rota e identidade.
func (s Service) CounterKey(class domain.RouteClass, key domain.Key) string {
	prefix := s.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + ":" + string(class) + ":" + string(key)
}

func (s Service) window(ctx context.Context, store domain.CounterStore, key string, rule domain.Rule) (domain.Decision, error) {
	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limit := rule.Policy.MaxRequests
	dec := domain.Decision{Class: rule.Class, Limit: limit}

	count, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNoCounter):
		created, err := store.Create(ctx, key, rule.Policy.Window)
		if err != nil {
			return dec, storeErr(err)
		}
		if created {
			dec.Allowed = true
			dec.Remaining = limit - 1
			return dec, nil
		}
		// outra requisição abriu a janela entre o GET e o SET NX: conta nela.
	case err != nil:
		return dec, storeErr(err)
	case count >= int64(limit):
		dec.RetryAfter = s.retryAfter(ctx, store, key, rule)
		return dec, nil
	}

	n, err := store.Increment(ctx, key)
	if err != nil {
		return dec, storeErr(err)
	}
	if n == 1 {
		// a chave expirou entre o GET e o INCR; sem isso o contador ficaria sem TTL.
		if err := store.SetWithTTL(ctx, key, 1, rule.Policy.Window); err != nil {
			return dec, storeErr(err)
		}
	}
	if n > int64(limit) {
		dec.RetryAfter = s.retryAfter(ctx, store, key, rule)
		return dec, nil
	}
	dec.Allowed = true
	dec.Remaining = limit - int(n)
	if dec.Remaining < 0 {
		dec.Remaining = 0
	}
	return dec, nil
}

// retryAfter é o TTL restante da janela, ou a janela inteira se desconhecido.
func (s Service) retryAfter(ctx context.Context, store domain.CounterStore, key string, rule domain.Rule) time.Duration {
	ttl, err := store.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		return rule.Policy.Window
	}
	return ttl
}

func (s Service) degrade(ctx context.Context, key string, rule domain.Rule, cause error) domain.Decision {
	switch s.OnFailure {
	case domain.FailClosed:
		return domain.Decision{
			Class:      rule.Class,
			Limit:      rule.Policy.MaxRequests,
			RetryAfter: rule.Policy.Window,
			Degraded:   true,
			Err:        cause,
		}
	case domain.FailFallback, "":
		if s.Fallback != nil {
			dec, err := s.window(ctx, s.Fallback, key, rule)
			if err == nil {
				dec.Degraded = true
				dec.Err = cause
				return dec
			}
			cause = errors.Join(cause, err)
		}
	}

	// fail open
	return domain.Decision{
		Allowed:  true,
		Class:    rule.Class,
		Limit:    rule.Policy.MaxRequests,
		Degraded: true,
		Err:      cause,
	}
}

func storeErr(err error) error {
	if domain.IsStoreUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
