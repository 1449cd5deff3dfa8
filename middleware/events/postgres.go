package events

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

// Execer é o subconjunto de *pgxpool.Pool (ou pgx.Conn) usado pelo sink.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertEventSQL = `INSERT INTO security_events
	(id, event_type, identity, method, path, field, detail, request_id, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

// PostgresSink grava os eventos na tabela security_events (trilha de auditoria).
type PostgresSink struct {
	DB Execer
}

func NewPostgresSink(db Execer) *PostgresSink {
	return &PostgresSink{DB: db}
}

// EnsureSchema cria a tabela e os índices se ainda não existirem.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure security_events schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Record(ctx context.Context, ev SecurityEvent) error {
	ev = ev.Normalize()
	_, err := s.DB.Exec(ctx, insertEventSQL,
		ev.ID, string(ev.Type), ev.Identity, ev.Method, ev.Path,
		ev.Field, ev.Detail, ev.RequestID, ev.At,
	)
	if err != nil {
		return fmt.Errorf("insert security event %s: %w", ev.ID, err)
	}
	return nil
}
