package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
)

// PolicyFile é o resultado validado do arquivo YAML de políticas.
type PolicyFile struct {
	Rules   []domain.Rule
	Default domain.Rule
	Exempt  []string
}

type policyDoc struct {
	Tiers   []tierDoc `yaml:"tiers"`
	Default *tierDoc  `yaml:"default"`
	Exempt  []string  `yaml:"exempt"`
}

type tierDoc struct {
	Class       string `yaml:"class"`
	Prefix      string `yaml:"prefix"`
	MaxRequests int    `yaml:"max_requests"`
	Window      string `yaml:"window"`
}

func (t tierDoc) policy() (domain.Policy, error) {
	w, err := parseWindow(t.Window)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("%w: window %q: %v", domain.ErrInvalidPolicy, t.Window, err)
	}
	return domain.Policy{MaxRequests: t.MaxRequests, Window: w}, nil
}

func LoadPolicyFile(path string) (PolicyFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return PolicyFile{}, fmt.Errorf("open policy file: %w", err)
	}
	defer f.Close()

	pf, err := ParsePolicy(f)
	if err != nil {
		return PolicyFile{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return pf, nil
}

// ParsePolicy decodifica e valida o YAML. A ordem de tiers é a ordem de match.
// Campos desconhecidos são erro.
func ParsePolicy(r io.Reader) (PolicyFile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return PolicyFile{}, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return PolicyFile{}, fmt.Errorf("%w: empty policy", domain.ErrInvalidPolicy)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var doc policyDoc
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return PolicyFile{}, fmt.Errorf("%w: %v", domain.ErrInvalidPolicy, err)
	}

	pf := PolicyFile{Default: application.DefaultRule(), Exempt: doc.Exempt}
	for i, t := range doc.Tiers {
		p, err := t.policy()
		if err != nil {
			return PolicyFile{}, fmt.Errorf("tier %d: %w", i, err)
		}
		pf.Rules = append(pf.Rules, domain.Rule{Class: domain.RouteClass(t.Class), Prefix: t.Prefix, Policy: p})
	}
	if doc.Default != nil {
		p, err := doc.Default.policy()
		if err != nil {
			return PolicyFile{}, fmt.Errorf("default: %w", err)
		}
		pf.Default = domain.Rule{Class: domain.RouteClass(doc.Default.Class), Policy: p}
	}

	if _, err := application.NewPolicyResolver(pf.Rules, pf.Default, pf.Exempt); err != nil {
		return PolicyFile{}, err
	}
	return pf, nil
}
