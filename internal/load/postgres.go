package load

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresDialect = Dialect{
	Name:        "postgres",
	Placeholder: sq.Dollar,
	UUIDType:    "uuid",
	TextType:    "text",
	IntType:     "bigint",
	TimeType:    "timestamptz",
	MaxParams:   65535,
	UUIDValue: func(id uuid.UUID) any {
		return pgtype.UUID{Bytes: id, Valid: true}
	},
}

// Postgres loads into PostgreSQL through a pgx pool. With copy enabled rows
// go through COPY FROM; otherwise they are batched into INSERT statements.
type Postgres struct {
	pool    *pgxpool.Pool
	useCopy bool
}

// NewPostgres connects to url and pings the server.
func NewPostgres(ctx context.Context, url string, maxConns int32, useCopy bool) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool, useCopy: useCopy}, nil
}

func (p *Postgres) Dialect() Dialect { return postgresDialect }

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if p.useCopy {
		return &pgCopyTx{pgTx{tx}}, nil
	}
	return pgTx{tx}, nil
}

// History returns the most recent loads.
func (p *Postgres) History(ctx context.Context, limit int) ([]Record, error) {
	query, args, err := historyQuery(postgresDialect, limit).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query load history: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Record])
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.Exec(ctx, query, args...)
	return err
}

func (t pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

type pgCopyTx struct {
	pgTx
}

func (t *pgCopyTx) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return t.tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}
