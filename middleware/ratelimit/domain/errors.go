package domain

import "errors"

var (
	// ErrNoCounter indica que não existe contador para a chave na janela atual.
	ErrNoCounter = errors.New("counter not found")
	// ErrStoreUnavailable envolve qualquer falha do CounterStore (timeout, conexão).
	ErrStoreUnavailable = errors.New("counter store unavailable")
	ErrInvalidPolicy    = errors.New("invalid rate limit policy")
)

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
