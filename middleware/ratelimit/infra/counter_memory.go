package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

// MemoryCounterStore é o fallback em memória do CounterStore.
//
// Expiração é preguiçosa: uma janela vencida só é descartada quando a chave é
// acessada de novo (ou numa limpeza oportunista feita durante as chamadas).
// Não há goroutine de varredura. O número de chaves é limitado por LRU.
type MemoryCounterStore struct {
	mu    sync.Mutex
	items cache.Cache[string, windowCounter]
	now   func() time.Time

	cleanupEvery time.Duration
	lastCleanup  time.Time
}

type windowCounter struct {
	count int64
	// zero = sem expiração conhecida (equivalente ao PTTL -1 do Redis)
	expiresAt time.Time
}

var _ domain.CounterStore = (*MemoryCounterStore)(nil)

type MemoryCounterOption func(*memoryCounterConfig)

type memoryCounterConfig struct {
	maxKeys      int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

// WithMaxKeys limita o número de identidades mantidas (LRU). 0 = sem limite.
func WithMaxKeys(n int) MemoryCounterOption {
	return func(c *memoryCounterConfig) { c.maxKeys = n }
}

// WithIdleTTL define quanto tempo vive um contador sem expiração explícita.
func WithIdleTTL(d time.Duration) MemoryCounterOption {
	return func(c *memoryCounterConfig) { c.idleTTL = d }
}

// WithCleanupEvery controla a frequência da limpeza oportunista. <= 0 desliga.
func WithCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(c *memoryCounterConfig) { c.cleanupEvery = d }
}

// WithClock permite que testes controlem o tempo.
func WithClock(now func() time.Time) MemoryCounterOption {
	return func(c *memoryCounterConfig) { c.now = now }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	cfg := memoryCounterConfig{
		maxKeys:      100_000,
		idleTTL:      15 * time.Minute,
		cleanupEvery: time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	items := cache.NewCache[string, windowCounter]().WithTTL(cfg.idleTTL).WithLRU()
	if cfg.maxKeys > 0 {
		items = items.WithMaxKeys(cfg.maxKeys)
	}

	return &MemoryCounterStore{
		items:        items,
		now:          cfg.now,
		cleanupEvery: cfg.cleanupEvery,
		lastCleanup:  cfg.now(),
	}
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeCleanupLocked(now)

	c, ok := s.liveLocked(key, now)
	if !ok {
		return 0, domain.ErrNoCounter
	}
	return c.count, nil
}

func (s *MemoryCounterStore) Create(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveLocked(key, now); ok {
		return false, nil
	}
	c := windowCounter{count: 1}
	if ttl > 0 {
		c.expiresAt = now.Add(ttl)
	}
	s.items.Set(key, c, ttl)
	return true, nil
}

func (s *MemoryCounterStore) SetWithTTL(_ context.Context, key string, count int64, ttl time.Duration) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c := windowCounter{count: count}
	if ttl > 0 {
		c.expiresAt = now.Add(ttl)
	}
	s.items.Set(key, c, ttl)
	return nil
}

// Increment preserva o vencimento da janela atual.
func (s *MemoryCounterStore) Increment(_ context.Context, key string) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.liveLocked(key, now)
	if !ok {
		c = windowCounter{}
	}
	c.count++

	var ttl time.Duration
	if !c.expiresAt.IsZero() {
		ttl = c.expiresAt.Sub(now)
	}
	s.items.Set(key, c, ttl)
	return c.count, nil
}

func (s *MemoryCounterStore) TTL(_ context.Context, key string) (time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.liveLocked(key, now)
	if !ok || c.expiresAt.IsZero() {
		return 0, nil
	}
	return c.expiresAt.Sub(now), nil
}

func (s *MemoryCounterStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Invalidate(key)
	return nil
}

// Len retorna o número de chaves ainda em memória (inclui vencidas não acessadas).
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

func (s *MemoryCounterStore) liveLocked(key string, now time.Time) (windowCounter, bool) {
	c, ok := s.items.Get(key)
	if !ok {
		return windowCounter{}, false
	}
	if !c.expiresAt.IsZero() && !now.Before(c.expiresAt) {
		s.items.Invalidate(key)
		return windowCounter{}, false
	}
	return c, true
}

func (s *MemoryCounterStore) maybeCleanupLocked(now time.Time) {
	if s.cleanupEvery <= 0 || now.Sub(s.lastCleanup) < s.cleanupEvery {
		return
	}
	s.lastCleanup = now
	s.items.DeleteExpired()
}
