package threatscan

import (
	"net/url"
	"sort"
)

type Location string

const (
	LocationQuery Location = "query"
	LocationPath  Location = "path"
)

// Finding descreve o primeiro match de um campo. Value é o valor original e
// serve apenas para log interno; nunca deve ir para o cliente.
type Finding struct {
	Category Category
	Location Location
	Field    string
	Value    string
}

// Scanner é imutável e seguro para uso concorrente.
type Scanner struct {
	signatures []Signature
}

// New cria um Scanner com as assinaturas informadas, na ordem dada.
// Sem argumentos usa DefaultSignatures.
func New(signatures ...Signature) *Scanner {
	if len(signatures) == 0 {
		signatures = DefaultSignatures()
	}
	return &Scanner{signatures: signatures}
}

// Detect testa um valor contra cada assinatura, na ordem; o primeiro match vence.
// Valor vazio é sempre limpo.
func (s *Scanner) Detect(value string) (Category, bool) {
	if value == "" {
		return "", false
	}
	for _, sig := range s.signatures {
		if sig.Pattern.MatchString(value) {
			return sig.Category, true
		}
	}
	return "", false
}

// Scan para no primeiro campo suspeito: valores de query primeiro (chaves em
// ordem alfabética, valores na ordem recebida) e depois o path.
func (s *Scanner) Scan(path string, query url.Values) (Finding, bool) {
	var (
		found Finding
		ok    bool
	)
	s.walk(path, query, func(f Finding) bool {
		found, ok = f, true
		return false
	})
	return found, ok
}

// ScanAll verifica todos os campos e retorna um Finding por campo suspeito.
func (s *Scanner) ScanAll(path string, query url.Values) []Finding {
	var out []Finding
	s.walk(path, query, func(f Finding) bool {
		out = append(out, f)
		return true
	})
	return out
}

func (s *Scanner) walk(path string, query url.Values, yield func(Finding) bool) {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range query[k] {
			if cat, hit := s.Detect(v); hit {
				if !yield(Finding{Category: cat, Location: LocationQuery, Field: k, Value: v}) {
					return
				}
				// um finding por campo
				break
			}
		}
	}

	if cat, hit := s.Detect(path); hit {
		yield(Finding{Category: cat, Location: LocationPath, Field: "path", Value: path})
	}
}
