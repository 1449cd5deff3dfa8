// Package ratelimit fornece os adapters HTTP (net/http) do rate limiter de
// janela fixa e do limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (Policy, Decision, CounterStore) sem net/http
//   - application: resolução de tier por prefixo e o algoritmo de janela fixa
//   - infra: stores concretos (Redis, memória), semáforo, throttle por chave
//   - ratelimit (este pacote): extração da identidade + tradução para status/headers
//
// Fluxo por requisição:
//
//  1. Extrai a identidade do cliente (X-Forwarded-For, X-Real-IP, RemoteAddr)
//  2. Pede a decisão para application.Service (store com timeout curto)
//  3. Se bloqueado, responde 429 com Retry-After (ou 503 quando fail-closed)
//  4. Se permitido, chama o próximo handler
package ratelimit
