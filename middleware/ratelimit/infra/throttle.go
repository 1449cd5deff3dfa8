package infra

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle mantém um token bucket (x/time/rate) por chave, com limpeza de
// chaves inativas. Usado para conter rajadas de alertas de segurança por cliente.
type Throttle struct {
	mu           sync.Mutex
	entries      map[string]*throttleEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type ThrottleOption func(*Throttle)

func WithThrottleIdleTTL(d time.Duration) ThrottleOption {
	return func(t *Throttle) { t.idleTTL = d }
}

func WithThrottleCleanupEvery(d time.Duration) ThrottleOption {
	return func(t *Throttle) { t.cleanupEvery = d }
}

func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(t *Throttle) { t.now = now }
}

func NewThrottle(rps float64, burst int, opts ...ThrottleOption) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	t := &Throttle{
		entries:      make(map[string]*throttleEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow consome um token da chave. Chave vazia vira "unknown".
func (t *Throttle) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}
	now := t.now()

	t.mu.Lock()
	ent, ok := t.entries[key]
	if !ok {
		ent = &throttleEntry{lim: rate.NewLimiter(t.rps, t.burst)}
		t.entries[key] = ent
	}
	ent.lastSeen = now
	t.mu.Unlock()

	return ent.lim.AllowN(now, 1)
}

func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Throttle) Cleanup() {
	cutoff := t.now().Add(-t.idleTTL)
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, ent := range t.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (t *Throttle) StartJanitor(ctx context.Context) {
	if t.cleanupEvery <= 0 {
		return
	}
	tick := time.NewTicker(t.cleanupEvery)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				t.Cleanup()
			}
		}
	}()
}
