package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Key identifica o cliente (IP, header, "unknown").
type Key string

// RouteClass agrupa rotas que compartilham a mesma política (ex: auth, api, default).
type RouteClass string

const (
	ClassAuth    RouteClass = "auth"
	ClassAPI     RouteClass = "api"
	ClassDefault RouteClass = "default"
)

// Policy é imutável: no máximo MaxRequests dentro de cada janela de Window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

func (p Policy) Validate() error {
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be > 0, got %d", ErrInvalidPolicy, p.MaxRequests)
	}
	if p.Window < time.Second {
		return fmt.Errorf("%w: window must be >= 1s, got %s", ErrInvalidPolicy, p.Window)
	}
	return nil
}

// Rule associa um prefixo de rota a uma classe e sua política.
type Rule struct {
	Class  RouteClass
	Prefix string
	Policy Policy
}

func (r Rule) Matches(path string) bool {
	return r.Prefix != "" && strings.HasPrefix(path, r.Prefix)
}

// FailurePolicy define o comportamento quando o CounterStore não responde.
type FailurePolicy string

const (
	// FailOpen permite a requisição.
	FailOpen FailurePolicy = "open"
	// FailFallback aplica o mesmo algoritmo sobre o contador em memória.
	FailFallback FailurePolicy = "fallback"
	// FailClosed rejeita a requisição.
	FailClosed FailurePolicy = "closed"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case FailOpen:
		return FailOpen, nil
	case FailFallback, "":
		return FailFallback, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want open, fallback or closed)", s)
}

// CounterStore é o contrato do armazenamento de contadores por janela.
//
// A atomicidade de cada operação é responsabilidade do store. A sequência
// Get -> Increment NÃO é atômica; o limiter é aproximado por construção.
type CounterStore interface {
	// Get retorna o valor atual ou ErrNoCounter se a chave não existe (ou expirou).
	Get(ctx context.Context, key string) (int64, error)
	// Create abre a janela (valor 1, expira em ttl) só se a chave não existir,
	// como SET NX. created=false quando outra requisição chegou antes.
	Create(ctx context.Context, key string, ttl time.Duration) (created bool, err error)
	SetWithTTL(ctx context.Context, key string, count int64, ttl time.Duration) error
	// Increment soma 1 sem alterar o TTL da chave.
	Increment(ctx context.Context, key string) (int64, error)
	// TTL retorna o tempo restante da janela; <= 0 quando desconhecido.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error
}

type Decision struct {
	Allowed bool
	Class   RouteClass
	Limit   int
	// Remaining é a quantidade de requisições ainda disponíveis na janela.
	Remaining int
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
	// Degraded indica que a decisão não veio do store principal.
	Degraded bool
	Exempt   bool
	// Err guarda a falha de infraestrutura que levou a uma decisão degradada.
	Err error
}

// RetryAfterSeconds arredonda para cima; nunca retorna menos que 1 para bloqueios.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}
