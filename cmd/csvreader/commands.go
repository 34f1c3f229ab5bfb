package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/csvreader/csvreader"
	"github.com/JonMunkholm/csvreader/internal/config"
	"github.com/JonMunkholm/csvreader/internal/load"
	"github.com/JonMunkholm/csvreader/internal/watch"
	"github.com/JonMunkholm/csvreader/internal/web"
	"golang.org/x/sync/errgroup"
)

func newFlagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: csvreader %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

func runDump(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("dump", "<source>")
	rf := addReaderFlags(fs)
	format := fs.String("format", "csv", "output format: csv or json (one object per line)")
	fieldList := fs.String("fields", "", "comma-separated fields to print; aliases, maps and options resolve too (default: every header field and -map column)")
	limit := fs.Int("limit", 0, "stop after this many rows (0 prints all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return flag.ErrHelp
	}

	rd, err := rf.open(ctx, cfg, fs.Arg(0))
	if err != nil {
		return err
	}
	defer rd.Close()

	fields := splitList(*fieldList)
	if len(fields) == 0 {
		fields = defaultFields(rd, rf.maps)
	}

	var emit func(values []any) error
	var flush func() error
	switch *format {
	case "csv":
		w := csv.NewWriter(stdout)
		if err := w.Write(fields); err != nil {
			return err
		}
		record := make([]string, len(fields))
		emit = func(values []any) error {
			for i, v := range values {
				record[i] = formatValue(v)
			}
			return w.Write(record)
		}
		flush = func() error {
			w.Flush()
			return w.Error()
		}
	case "json":
		enc := json.NewEncoder(stdout)
		emit = func(values []any) error {
			obj := make(map[string]any, len(fields))
			for i, name := range fields {
				obj[name] = values[i]
			}
			return enc.Encode(obj)
		}
		flush = func() error { return nil }
	default:
		return fmt.Errorf("unknown format %q (want csv or json)", *format)
	}

	values := make([]any, len(fields))
	n := 0
	for range rd.Rows() {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, name := range fields {
			values[i], _ = rd.Get(name)
		}
		if err := emit(values); err != nil {
			return err
		}
		n++
		if *limit > 0 && n >= *limit {
			break
		}
	}
	if err := rd.Err(); err != nil {
		return err
	}
	return flush()
}

// defaultFields lists the header fields followed by the mapped columns.
func defaultFields(rd *csvreader.Reader, maps []csvreader.Map) []string {
	var fields []string
	for _, f := range rd.Header().Fields() {
		fields = append(fields, f.Name)
	}
	for _, m := range maps {
		fields = append(fields, m.Column)
	}
	return fields
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func runTitles(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("titles", "<source>")
	rf := addReaderFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return flag.ErrHelp
	}

	rd, err := rf.open(ctx, cfg, fs.Arg(0))
	if err != nil {
		return err
	}
	defer rd.Close()

	titles := rd.HeaderTitles()
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTITLE\tFIELD")
	for _, f := range rd.Header().Fields() {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", f.Index, titles[f.Index], f.Name)
	}
	for alias, field := range rd.Aliases() {
		fmt.Fprintf(tw, "-\t%s\t%s (alias)\n", alias, field)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	rows, err := rd.LineCount()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\n%d data rows\n", rows)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, args []string, _ io.Writer) error {
	fs := newFlagSet("serve", "")
	if err := fs.Parse(args); err != nil {
		return err
	}

	server := web.NewServer(cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr(), "preview_dir", cfg.Server.PreviewDir)
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	slog.Info("server stopped")
	return nil
}

// openLoader connects to the configured database.
func openLoader(ctx context.Context, cfg *config.Config) (*load.Loader, load.Sink, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, err
	}
	sink, err := load.OpenSink(ctx, cfg.Database.Driver, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.UseCopy)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("connected to database", "driver", sink.Dialect().Name)

	loader := load.New(sink,
		load.WithBatchSize(cfg.Database.BatchSize),
		load.WithLimiter(load.NewLimiter(cfg.Database.MaxConcurrent, cfg.Database.MaxWait)),
		load.WithLogger(slog.Default()),
	)
	return loader, sink, nil
}

func runLoad(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("load", "<source>...")
	rf := addReaderFlags(fs)
	table := fs.String("table", "", "target table (default: derived from each file name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Database.Timeout)
	defer cancel()

	loader, sink, err := openLoader(ctx, cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	sources := fs.Args()
	results := make([]*load.Result, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Database.MaxConcurrent)
	for _, group := range groupByTable(sources, *table) {
		// Sources sharing a table load in order: concurrent CREATE TABLE
		// IF NOT EXISTS on one name can fail in PostgreSQL.
		g.Go(func() error {
			for _, i := range group.sources {
				res, err := loadSource(gctx, cfg, rf, loader, sources[i], group.table)
				if err != nil {
					return err
				}
				results[i] = res
			}
			return nil
		})
	}
	err = g.Wait()

	for i, res := range results {
		if res != nil {
			fmt.Fprintf(stdout, "%s: %d rows into %s (load %s, %d blank skipped, %s)\n",
				fs.Arg(i), res.Rows, res.Table, res.LoadID, res.Skipped, res.Duration.Round(time.Millisecond))
		}
	}
	return err
}

func loadSource(ctx context.Context, cfg *config.Config, rf *readerFlags, loader *load.Loader, source, table string) (*load.Result, error) {
	rd, err := rf.open(ctx, cfg, source)
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	res, err := loader.Load(ctx, rd, table)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return res, nil
}

// tableGroup is the sources, by index, that load into one table.
type tableGroup struct {
	table   string
	sources []int
}

// groupByTable groups sources by target table in first-seen order. An
// empty table derives one from each file name.
func groupByTable(sources []string, table string) []tableGroup {
	var groups []tableGroup
	pos := make(map[string]int)
	for i, source := range sources {
		target := table
		if target == "" {
			target = load.TableName(source)
		}
		j, ok := pos[target]
		if !ok {
			j = len(groups)
			pos[target] = j
			groups = append(groups, tableGroup{table: target})
		}
		groups[j].sources = append(groups[j].sources, i)
	}
	return groups
}

func runWatch(ctx context.Context, cfg *config.Config, args []string, _ io.Writer) error {
	fs := newFlagSet("watch", "")
	rf := addReaderFlags(fs)
	dir := fs.String("dir", cfg.Watch.Dir, "directory to watch")
	table := fs.String("table", cfg.Watch.Table, "target table (default: derived from each file name)")
	debounce := fs.Duration("debounce", cfg.Watch.Debounce, "quiet period before a changed file is loaded")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts, err := rf.options(cfg)
	if err != nil {
		return err
	}

	loader, sink, err := openLoader(ctx, cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	w := watch.New(watch.Config{
		Dir:      *dir,
		Table:    *table,
		Debounce: *debounce,
		Options:  opts,
		Logger:   slog.Default(),
	}, loader)
	return w.Run(ctx)
}

func runHistory(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("history", "")
	limit := fs.Int("limit", 20, "number of loads to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, sink, err := openLoader(ctx, cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	records, err := sink.History(ctx, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOADED AT\tLOAD ID\tTABLE\tROWS\tSOURCE")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			rec.LoadedAt.Local().Format(time.DateTime), rec.LoadID, rec.Table, rec.Rows, rec.Source)
	}
	return tw.Flush()
}
