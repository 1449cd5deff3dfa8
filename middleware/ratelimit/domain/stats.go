package domain

import (
	"context"
	"time"
)

// Outcome é o resultado de uma requisição no pipeline de admissão.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeLimited Outcome = "limited"
	OutcomeFlagged Outcome = "flagged"
)

// StatsEvent representa um evento de decisão do pipeline.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de chaves no Redis).
type StatsEvent struct {
	Key     Key
	Class   RouteClass
	Outcome Outcome

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas.
//
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
