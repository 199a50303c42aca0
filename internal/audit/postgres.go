package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/seanblong/projectsearch/pkg/models"
)

// PostgresLedger mirrors audit records into an audit_log table. The query
// embedding is kept in a pgvector column so past requests can be clustered.
type PostgresLedger struct {
	pool *pgxpool.Pool
	dim  int
}

// OpenPostgres connects to url. dim is the width of the query_vec column.
func OpenPostgres(ctx context.Context, url string, dim int) (*PostgresLedger, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid query vector dimension %d", dim)
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresLedger{pool: p, dim: dim}, nil
}

// Migrate creates the audit table if it does not exist.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS audit_log (
  id         BIGSERIAL PRIMARY KEY,
  date       TIMESTAMP WITH TIME ZONE NOT NULL,
  address    TEXT NOT NULL,
  query      TEXT NOT NULL,
  response   JSONB NOT NULL,
  query_vec  vector(%d)
);

CREATE INDEX IF NOT EXISTS audit_log_date_idx
  ON audit_log (date);
`
	_, err := l.pool.Exec(ctx, fmt.Sprintf(q, l.dim))
	return err
}

func (l *PostgresLedger) Append(ctx context.Context, rec models.AuditRecord) error {
	resp, err := json.Marshal(rec.Response)
	if err != nil {
		return fmt.Errorf("encode audit response: %w", err)
	}

	const q = `
		INSERT INTO audit_log (date, address, query, response, query_vec)
		VALUES ($1, $2, $3, $4::jsonb, $5)`

	_, err = l.pool.Exec(ctx, q,
		rec.Date, rec.Address, rec.Query, string(resp), queryVector(rec.QueryVector, l.dim),
	)
	if err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}

// Ping checks the database connectivity.
func (l *PostgresLedger) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return l.pool.Ping(ctx)
}

func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}

// queryVector returns a NULL vector when v does not fit the column.
func queryVector(v []float32, dim int) any {
	if len(v) != dim {
		return (*pgvector.Vector)(nil)
	}
	vec := pgvector.NewVector(v)
	return &vec
}
