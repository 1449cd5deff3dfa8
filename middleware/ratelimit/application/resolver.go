package application

import (
	"fmt"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// PolicyResolver escolhe a política de uma rota por prefixo.
// A ordem das regras importa: o primeiro prefixo que casar vence.
type PolicyResolver struct {
	rules  []domain.Rule
	def    domain.Rule
	exempt []string
}

// DefaultRules são os tiers padrão: auth (estrito) antes de api (moderado).
func DefaultRules() []domain.Rule {
	return []domain.Rule{
		{Class: domain.ClassAuth, Prefix: "/api/auth/", Policy: domain.Policy{MaxRequests: 5, Window: 60 * time.Second}},
		{Class: domain.ClassAPI, Prefix: "/api/", Policy: domain.Policy{MaxRequests: 100, Window: 60 * time.Second}},
	}
}

func DefaultRule() domain.Rule {
	return domain.Rule{Class: domain.ClassDefault, Policy: domain.Policy{MaxRequests: 200, Window: 60 * time.Second}}
}

func NewPolicyResolver(rules []domain.Rule, def domain.Rule, exempt []string) (*PolicyResolver, error) {
	seen := make(map[domain.RouteClass]bool, len(rules)+1)
	for i, r := range rules {
		if strings.TrimSpace(string(r.Class)) == "" {
			return nil, fmt.Errorf("%w: rule %d has no class", domain.ErrInvalidPolicy, i)
		}
		if strings.TrimSpace(r.Prefix) == "" {
			return nil, fmt.Errorf("%w: rule %q has no prefix", domain.ErrInvalidPolicy, r.Class)
		}
		if seen[r.Class] {
			return nil, fmt.Errorf("%w: duplicate class %q", domain.ErrInvalidPolicy, r.Class)
		}
		seen[r.Class] = true
		if err := r.Policy.Validate(); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Class, err)
		}
	}
	if def.Class == "" {
		def.Class = domain.ClassDefault
	}
	if seen[def.Class] {
		return nil, fmt.Errorf("%w: default class %q collides with a rule", domain.ErrInvalidPolicy, def.Class)
	}
	if err := def.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("default rule: %w", err)
	}

	pr := &PolicyResolver{
		rules: append([]domain.Rule(nil), rules...),
		def:   def,
	}
	for _, p := range exempt {
		if p = strings.TrimSpace(p); p != "" {
			pr.exempt = append(pr.exempt, p)
		}
	}
	return pr, nil
}

// DefaultResolver monta o resolver com os tiers padrão e sem rotas isentas.
func DefaultResolver() *PolicyResolver {
	pr, err := NewPolicyResolver(DefaultRules(), DefaultRule(), nil)
	if err != nil {
		// regras estáticas; só falha se alguém quebrar DefaultRules.
		panic(err)
	}
	return pr
}

// Resolve retorna a regra da rota e se ela é isenta de rate limit.
func (p *PolicyResolver) Resolve(path string) (domain.Rule, bool) {
	for _, prefix := range p.exempt {
		if strings.HasPrefix(path, prefix) {
			return p.match(path), true
		}
	}
	return p.match(path), false
}

func (p *PolicyResolver) match(path string) domain.Rule {
	for _, r := range p.rules {
		if r.Matches(path) {
			return r
		}
	}
	return p.def
}

func (p *PolicyResolver) Rules() []domain.Rule {
	out := make([]domain.Rule, 0, len(p.rules)+1)
	out = append(out, p.rules...)
	return append(out, p.def)
}
