package events

import (
	"context"
	"sync/atomic"
)

// Limiter decide se uma chave ainda pode emitir eventos agora.
// *infra.Throttle (token bucket por chave) satisfaz esta interface.
type Limiter interface {
	Allow(key string) bool
}

// ThrottledSink limita o volume de alertas por identidade, evitando que um
// único cliente inunde logs e banco durante um ataque.
type ThrottledSink struct {
	Next    Sink
	Limiter Limiter

	suppressed atomic.Int64
}

func NewThrottledSink(next Sink, limiter Limiter) *ThrottledSink {
	return &ThrottledSink{Next: next, Limiter: limiter}
}

func (s *ThrottledSink) Record(ctx context.Context, ev SecurityEvent) error {
	if s.Next == nil {
		return nil
	}
	if s.Limiter != nil && !s.Limiter.Allow(ev.Identity+"|"+string(ev.Type)) {
		s.suppressed.Add(1)
		return nil
	}
	return s.Next.Record(ctx, ev)
}

// Suppressed retorna quantos eventos foram descartados pelo limiter.
func (s *ThrottledSink) Suppressed() int64 { return s.suppressed.Load() }
