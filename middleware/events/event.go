// Package events registra alertas de segurança do pipeline de admissão
// (entradas maliciosas, rate limit estourado, store indisponível).
//
// O registro é best-effort: nenhuma falha aqui altera a resposta HTTP.
package events

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Type string

const (
	TypeSQLInjection      Type = "SQL_INJECTION"
	TypeXSS               Type = "XSS"
	TypePathTraversal     Type = "PATH_TRAVERSAL"
	TypeRateLimitExceeded Type = "RATE_LIMIT_EXCEEDED"
	TypeStoreUnavailable  Type = "STORE_UNAVAILABLE"
)

// MaxDetail limita o trecho do valor suspeito guardado no evento.
const MaxDetail = 256

type SecurityEvent struct {
	ID        string
	Type      Type
	Identity  string
	Method    string
	Path      string
	Field     string
	Detail    string
	RequestID string
	At        time.Time
}

// Normalize preenche ID e At quando vazios, troca bytes inválidos e NUL dos
// campos vindos do cliente e corta Detail em até MaxDetail bytes. O
// resultado é sempre UTF-8 válido, aceito pelo Postgres e pelo JSON.
func (ev SecurityEvent) Normalize() SecurityEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ev.Identity = sanitize(ev.Identity)
	ev.Method = sanitize(ev.Method)
	ev.Path = sanitize(ev.Path)
	ev.Field = sanitize(ev.Field)
	ev.RequestID = sanitize(ev.RequestID)
	ev.Detail = Truncate(sanitize(ev.Detail), MaxDetail)
	return ev
}

// Truncate corta s em no máximo n bytes sem partir uma runa ao meio.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func sanitize(s string) string {
	if utf8.ValidString(s) && strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "\uFFFD")
}

// Sink é o destino dos eventos.
type Sink interface {
	Record(ctx context.Context, ev SecurityEvent) error
}

// SinkFunc adapta uma função para Sink.
type SinkFunc func(ctx context.Context, ev SecurityEvent) error

func (f SinkFunc) Record(ctx context.Context, ev SecurityEvent) error { return f(ctx, ev) }

// Discard ignora todos os eventos.
var Discard Sink = SinkFunc(func(context.Context, SecurityEvent) error { return nil })
