package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultAsyncBuffer = 1024

// AsyncSink tira a escrita do caminho da requisição: Record apenas enfileira
// e um worker entrega ao Next. Fila cheia descarta e conta.
type AsyncSink struct {
	next    Sink
	logger  *slog.Logger
	timeout time.Duration

	queue   chan SecurityEvent
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

type AsyncOption func(*AsyncSink)

func WithAsyncLogger(l *slog.Logger) AsyncOption {
	return func(s *AsyncSink) { s.logger = l }
}

// WithWriteTimeout limita cada entrega ao Next (padrão 2s).
func WithWriteTimeout(d time.Duration) AsyncOption {
	return func(s *AsyncSink) { s.timeout = d }
}

func NewAsyncSink(next Sink, buffer int, opts ...AsyncOption) *AsyncSink {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	s := &AsyncSink{
		next:    next,
		logger:  slog.Default(),
		timeout: 2 * time.Second,
		queue:   make(chan SecurityEvent, buffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *AsyncSink) Record(_ context.Context, ev SecurityEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return nil
	}
	select {
	case s.queue <- ev.Normalize():
	default:
		s.dropped.Add(1)
	}
	return nil
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.next.Record(ctx, ev); err != nil {
			s.logger.Warn("security event not recorded", "event_id", ev.ID, "type", string(ev.Type), "err", err)
		}
		cancel()
	}
}

// Close para de aceitar eventos e espera a fila esvaziar ou o ctx encerrar.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped retorna quantos eventos foram descartados (fila cheia ou sink fechado).
func (s *AsyncSink) Dropped() int64 { return s.dropped.Load() }
