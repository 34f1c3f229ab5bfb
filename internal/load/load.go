// Package load copies the data rows of a csvreader.Reader into a SQL table.
//
// Every header field becomes a text column named after its sanitized,
// lowercased name, plus a load_id column tagging the rows of one load. The
// table is created when missing. A load runs in a single transaction and
// is recorded in the csv_loads table.
package load

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/csvreader/csvreader"
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const (
	// HistoryTable records one row per completed load.
	HistoryTable = "csv_loads"

	loadIDColumn = "load_id"

	// contextCheckInterval is how often, in rows, cancellation is checked.
	contextCheckInterval = 100
)

// Record is one row of the load history.
type Record struct {
	LoadID   string    `db:"load_id"`
	Source   string    `db:"source"`
	Table    string    `db:"table_name"`
	Rows     int64     `db:"row_count"`
	LoadedAt time.Time `db:"loaded_at"`
}

// Result summarizes a finished load.
type Result struct {
	LoadID   uuid.UUID
	Table    string
	Columns  []string
	Rows     int64
	Skipped  int64
	Duration time.Duration
}

// Loader loads readers into a Sink.
type Loader struct {
	sink      Sink
	batchSize int
	limiter   *Limiter
	logger    *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithBatchSize sets the number of rows per INSERT or COPY.
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithLimiter shares a concurrency limit between loaders.
func WithLimiter(lim *Limiter) Option {
	return func(l *Loader) { l.limiter = lim }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New creates a Loader writing to sink.
func New(sink Sink, opts ...Option) *Loader {
	l := &Loader{
		sink:      sink,
		batchSize: 1000,
		limiter:   NewLimiter(1, 0),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load rewinds rd and inserts all of its data rows into table. Rows whose
// cells are all blank are skipped. Nothing is committed unless every row
// is written.
func (l *Loader) Load(ctx context.Context, rd *csvreader.Reader, table string) (*Result, error) {
	if err := l.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer l.limiter.Release()

	start := time.Now()
	d := l.sink.Dialect()
	res := &Result{
		LoadID:  uuid.New(),
		Table:   table,
		Columns: ColumnNames(rd.Header()),
	}
	logger := l.logger.With("load_id", res.LoadID, "table", table, "source", rd.Source())

	if err := rd.Rewind(); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", rd.Source(), err)
	}

	tx, err := l.sink.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // no-op once committed

	if err := tx.Exec(ctx, createTableSQL(d, table, res.Columns)); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	if err := tx.Exec(ctx, createHistorySQL(d)); err != nil {
		return nil, fmt.Errorf("create table %s: %w", HistoryTable, err)
	}

	loadID := d.UUIDValue(res.LoadID)
	batch := make([][]any, 0, l.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := l.write(ctx, tx, d, table, res.Columns, batch)
		if err != nil {
			return err
		}
		res.Rows += n
		batch = batch[:0]
		return nil
	}

	var seen int
	for key, row := range rd.Rows() {
		if seen%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("load cancelled at row %d: %w", key, err)
			}
		}
		seen++

		if isBlank(row) {
			res.Skipped++
			continue
		}
		batch = append(batch, BuildRow(loadID, row))
		if len(batch) == l.batchSize {
			if err := flush(); err != nil {
				return nil, fmt.Errorf("write rows ending at %d: %w", key, err)
			}
		}
	}
	if err := rd.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, fmt.Errorf("write final rows: %w", err)
	}

	query, args, err := sq.Insert(quoteIdentifier(HistoryTable)).
		Columns("load_id", "source", "table_name", "row_count", "loaded_at").
		Values(loadID, rd.Source(), table, res.Rows, time.Now().UTC()).
		PlaceholderFormat(d.Placeholder).
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := tx.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("record load: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit load: %w", err)
	}

	res.Duration = time.Since(start)
	logger.Info("csv loaded",
		"rows", res.Rows,
		"skipped", res.Skipped,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// write sends one batch, by COPY when the transaction supports it and by
// multi-row INSERTs otherwise.
func (l *Loader) write(ctx context.Context, tx Tx, d Dialect, table string, columns []string, rows [][]any) (int64, error) {
	if c, ok := tx.(copier); ok {
		return c.CopyRows(ctx, table, columns, rows)
	}

	perStmt := max(d.MaxParams/len(columns), 1)
	var written int64
	for chunk := range chunks(rows, perStmt) {
		query, args, err := insertSQL(d, table, columns, chunk)
		if err != nil {
			return written, err
		}
		if err := tx.Exec(ctx, query, args...); err != nil {
			return written, err
		}
		written += int64(len(chunk))
	}
	return written, nil
}

func chunks(rows [][]any, size int) iter.Seq[[][]any] {
	return func(yield func([][]any) bool) {
		for i := 0; i < len(rows); i += size {
			if !yield(rows[i:min(i+size, len(rows))]) {
				return
			}
		}
	}
}

func insertSQL(d Dialect, table string, columns []string, rows [][]any) (string, []any, error) {
	b := sq.Insert(quoteIdentifier(table)).
		Columns(quoteAll(columns)...).
		PlaceholderFormat(d.Placeholder)
	for _, row := range rows {
		b = b.Values(row...)
	}
	return b.ToSql()
}

func createTableSQL(d Dialect, table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		typ := d.TextType
		if c == loadIDColumn {
			typ = d.UUIDType + " NOT NULL"
		}
		defs[i] = quoteIdentifier(c) + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdentifier(table), strings.Join(defs, ", "))
}

func createHistorySQL(d Dialect) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (load_id %s PRIMARY KEY, source %s NOT NULL, table_name %s NOT NULL, row_count %s NOT NULL, loaded_at %s NOT NULL)",
		quoteIdentifier(HistoryTable), d.UUIDType, d.TextType, d.TextType, d.IntType, d.TimeType,
	)
}

func historyQuery(d Dialect, limit int) sq.SelectBuilder {
	id := "load_id"
	if d.Name == "postgres" {
		id = "load_id::text AS load_id"
	}
	q := sq.Select(id, "source", "table_name", "row_count", "loaded_at").
		From(quoteIdentifier(HistoryTable)).
		OrderBy("loaded_at DESC").
		PlaceholderFormat(d.Placeholder)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

// ColumnNames returns the table columns for a header: load_id followed by
// the lowercased field names. Names that collide get a numeric suffix.
func ColumnNames(h *csvreader.Header) []string {
	fields := h.Fields()
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, loadIDColumn)
	used := map[string]bool{loadIDColumn: true}

	for _, f := range fields {
		base := strings.ToLower(f.Name)
		name := base
		for i := 2; used[name]; i++ {
			name = base + "_" + strconv.Itoa(i)
		}
		used[name] = true
		cols = append(cols, name)
	}
	return cols
}

// BuildRow converts a reader row into insert values in column order.
// Cells are cleaned with CleanCell and empty cells become NULL.
func BuildRow(loadID any, row csvreader.Row) []any {
	out := make([]any, 0, len(row)+1)
	out = append(out, loadID)
	for _, f := range row {
		v := CleanCell(f.Value)
		if v == "" {
			out = append(out, nil)
			continue
		}
		out = append(out, v)
	}
	return out
}

// CleanCell trims whitespace and unwraps the formula form spreadsheets
// export to keep leading zeros (="00123" or =00123).
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case len(s) >= 3 && strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`):
		s = s[2 : len(s)-1]
	case strings.HasPrefix(s, "=") && !strings.ContainsAny(s[1:], "(+-*/&"):
		s = s[1:]
	}
	return s
}

// TableName derives a table name from a file path: the base name without
// extension, sanitized and lowercased.
func TableName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(base)
	name := strings.ToLower(csvreader.Sanitize(base))
	switch {
	case name == "":
		return "csv_import"
	case name[0] >= '0' && name[0] <= '9':
		return "t_" + name
	}
	return name
}

func isBlank(row csvreader.Row) bool {
	for _, f := range row {
		if strings.TrimSpace(f.Value) != "" {
			return false
		}
	}
	return true
}
