// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// (janela fixa, tiers por rota, política de falha) de detalhes de infraestrutura
// como Redis ou o mapa em memória.
package domain
