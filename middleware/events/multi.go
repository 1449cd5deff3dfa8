package events

import (
	"context"
	"errors"
)

// MultiSink entrega o evento a todos os sinks, mesmo quando algum falha.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, ev SecurityEvent) error {
	ev = ev.Normalize()
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
