// Package threatscan detecta assinaturas de ataque (SQL injection, XSS,
// path traversal) nos valores de query string e no path da requisição.
//
// Cada assinatura precisa casar com o valor INTEIRO (âncoras ^...$), então
// "update" sozinho é limpo, mas "update users set x" não.
package threatscan

import "regexp"

type Category string

const (
	SQLInjection  Category = "SQL_INJECTION"
	XSS           Category = "XSS"
	PathTraversal Category = "PATH_TRAVERSAL"
)

// Signature é um padrão compilado associado a uma categoria.
type Signature struct {
	Category Category
	Pattern  *regexp.Regexp
}

var sqlInjectionPattern = regexp.MustCompile(`(?i)^.*(` +
	// palavras-chave seguidas de conteúdo
	`(union|select|insert|delete|update|drop|create|alter|exec|execute|truncate|declare|cast|convert)\s+.*|` +
	// tautologias
	`(\s*(or|and)\s+\w+\s*=\s*\w+)|` +
	`(\s*(or|and)\s+\d+\s*=\s*\d+)|` +
	// terminadores e comentários
	`(\s*;\s*)|` +
	`(\s*--\s*)|` +
	`(\s*/\*.*\*/\s*)|` +
	// quebra de aspas
	`(\s*'\s*or\s*'\d+'\s*=\s*'\d+)|` +
	`(\s*'\s*or\s*1\s*=\s*1)|` +
	`(\s*'\s*or\s*'\w+'\s*=\s*'\w+)|` +
	`(\s*'\s*union\s+select)|` +
	`(\s*'\s*;\s*drop\s+table)|` +
	`(\s*'\s*;\s*delete\s+from)|` +
	`(\s*'\s*;\s*update\s+.*\s+set)|` +
	// blind / time based
	`(\s*'\s*;\s*waitfor\s+delay)|` +
	`(\s*'\s*;\s*sleep\s*\()|` +
	`(\s*'\s*;\s*exec\s*\()|` +
	`(\s*'\s*;\s*sp_)|` +
	`(\s*'\s*union\s+select.*information_schema)|` +
	`(\s*'\s*or\s*'\w+'\s*like\s*'\w+)|` +
	`(\s*'\s*or\s*\d+\s*like\s*\d+)|` +
	// null byte, hex e double encoding
	`(\s*'\s*or\s*'\w+'\s*=\s*'\w+\x00)|` +
	`(\s*'\s*or\s*'\w+'\s*=\s*0x)|` +
	`(\s*'\s*or\s*'\w+'\s*=\s*%27)` +
	`)$`)

var xssPattern = regexp.MustCompile(`(?i)^(?:` +
	`.*<script.*>.*</script>|` +
	`.*javascript:.*|` +
	`.*on\w+\s*=.*|` +
	`.*<iframe.*>.*</iframe>|` +
	`.*<object.*>.*</object>|` +
	`.*<embed.*>.*</embed>` +
	`)$`)

// (?s): ".." em qualquer linha do valor conta, inclusive depois de um \n.
var pathTraversalPattern = regexp.MustCompile(`(?s)^(?:.*\.\..*|.*\.\./.*|.*\.\.\\\.*)$`)

// DefaultSignatures retorna as assinaturas na ordem de avaliação:
// SQL_INJECTION, XSS, PATH_TRAVERSAL.
func DefaultSignatures() []Signature {
	return []Signature{
		{Category: SQLInjection, Pattern: sqlInjectionPattern},
		{Category: XSS, Pattern: xssPattern},
		{Category: PathTraversal, Pattern: pathTraversalPattern},
	}
}
