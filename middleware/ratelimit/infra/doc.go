// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: contadores de janela fixa no Redis (GET/SET EX/INCR/PTTL/DEL)
//   - MemoryCounterStore: fallback em memória (expirable-cache, expiração preguiçosa)
//   - RedisStatsStore / MemoryStatsStore: estatísticas das decisões
//   - Throttle: token bucket por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
package infra
