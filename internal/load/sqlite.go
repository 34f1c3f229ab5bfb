package load

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var sqliteDialect = Dialect{
	Name:        "sqlite",
	Placeholder: sq.Question,
	UUIDType:    "TEXT",
	TextType:    "TEXT",
	IntType:     "INTEGER",
	TimeType:    "TIMESTAMP",
	MaxParams:   32766,
	UUIDValue: func(id uuid.UUID) any {
		return id.String()
	},
}

// SQLite loads into a SQLite database file.
type SQLite struct {
	db *sqlx.DB
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Dialect() Dialect { return sqliteDialect }

func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return sqliteTx{tx}, nil
}

// History returns the most recent loads.
func (s *SQLite) History(ctx context.Context, limit int) ([]Record, error) {
	query, args, err := historyQuery(sqliteDialect, limit).ToSql()
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("query load history: %w", err)
	}
	return records, nil
}

// Count returns the number of rows in table.
func (s *SQLite) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+quoteIdentifier(table))
	return n, err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx *sqlx.Tx
}

func (t sqliteTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t sqliteTx) Commit(ctx context.Context) error { return t.tx.Commit() }

func (t sqliteTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
