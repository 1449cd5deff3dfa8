// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, key, path) resolve o tier da rota, aplica a janela fixa
// no CounterStore e devolve uma Decision (allow/deny + retry-after).
package application
