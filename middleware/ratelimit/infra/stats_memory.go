package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Limited int64 `json:"limited"`
	Flagged int64 `json:"flagged"`
}

func (c *Counters) add(o domain.Outcome) {
	switch o {
	case domain.OutcomeLimited:
		c.Limited++
	case domain.OutcomeFlagged:
		c.Flagged++
	default:
		c.Allowed++
	}
}

// MemoryStatsStore é uma implementação em memória para desenvolvimento e
// para o endpoint /stats do example-server.
//
// Rotas e chaves vêm do cliente, então ficam em LRUs limitados (WithMaxRoutes)
// com expiração por inatividade; por classe é um map comum (poucas classes).
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byClass map[string]Counters
	byRoute cache.Cache[string, Counters]
	byKey   cache.Cache[string, Counters]

	trackKeys bool
	maxRoutes int
	idleTTL   time.Duration
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

// WithMaxRoutes limita as entradas de ByRoute e de ByKey. <= 0 usa o padrão.
func WithMaxRoutes(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) {
		if n > 0 {
			s.maxRoutes = n
		}
	}
}

// WithStatsIdleTTL: entradas sem atividade por esse tempo somem do snapshot.
func WithStatsIdleTTL(d time.Duration) MemoryStatsOption {
	return func(s *MemoryStatsStore) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

const DefaultMaxRoutes = 1000

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byClass:   make(map[string]Counters),
		maxRoutes: DefaultMaxRoutes,
		idleTTL:   24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.byRoute = cache.NewCache[string, Counters]().WithTTL(s.idleTTL).WithLRU().WithMaxKeys(s.maxRoutes)
	s.byKey = cache.NewCache[string, Counters]().WithTTL(s.idleTTL).WithLRU().WithMaxKeys(s.maxRoutes)
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)
	bumpCache(s.byRoute, route, ev.Outcome)
	if ev.Class != "" {
		c := s.byClass[string(ev.Class)]
		c.add(ev.Outcome)
		s.byClass[string(ev.Class)] = c
	}
	if s.trackKeys {
		bumpCache(s.byKey, string(ev.Key), ev.Outcome)
	}
	return nil
}

func bumpCache(c cache.Cache[string, Counters], k string, o domain.Outcome) {
	v, _ := c.Get(k)
	v.add(o)
	c.Set(k, v, 0)
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByClass() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byClass))
	for k, v := range s.byClass {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.byKey)
}

func snapshot(c cache.Cache[string, Counters]) map[string]Counters {
	keys := c.Keys()
	out := make(map[string]Counters, len(keys))
	for _, k := range keys {
		if v, ok := c.Peek(k); ok {
			out[k] = v
		}
	}
	return out
}
