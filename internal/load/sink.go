package load

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Dialect describes how SQL is written for a sink.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat

	UUIDType string
	TextType string
	IntType  string
	TimeType string

	// MaxParams is the bind parameter limit of one statement.
	MaxParams int

	// UUIDValue converts a load id into a bindable value.
	UUIDValue func(uuid.UUID) any
}

// Tx is one load's transaction.
type Tx interface {
	Exec(ctx context.Context, query string, args ...any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// copier is implemented by transactions that support bulk copy.
type copier interface {
	CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Sink is a database that rows are loaded into.
type Sink interface {
	Dialect() Dialect
	Begin(ctx context.Context) (Tx, error)
	History(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// quoteIdentifier quotes a table or column name for PostgreSQL and SQLite.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdentifier(n)
	}
	return out
}

// OpenSink connects to the database named by driver ("postgres" or
// "sqlite"). For sqlite, url is a file path.
func OpenSink(ctx context.Context, driver, url string, maxConns int, useCopy bool) (Sink, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return NewPostgres(ctx, url, int32(maxConns), useCopy)
	case "sqlite", "sqlite3":
		return NewSQLite(url)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
