// Package watch loads CSV files dropped into a directory.
//
// New or rewritten .csv files are loaded once writes settle, then moved into
// the Uploaded subdirectory. Files that fail to load stay where they are and
// are retried on their next write.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/csvreader/csvreader"
	"github.com/JonMunkholm/csvreader/internal/load"
	"github.com/fsnotify/fsnotify"
)

// UploadedDir is the subdirectory loaded files are moved to.
const UploadedDir = "Uploaded"

// Loader loads one reader into a table.
type Loader interface {
	Load(ctx context.Context, rd *csvreader.Reader, table string) (*load.Result, error)
}

// Config configures a Watcher.
type Config struct {
	Dir string

	// Table receives every file; empty derives the table from the file name.
	Table string

	// Debounce is how long a file must be quiet before it is loaded.
	Debounce time.Duration

	Options csvreader.Options
	Logger  *slog.Logger
}

// Watcher loads CSV files appearing in a directory.
type Watcher struct {
	cfg    Config
	loader Loader
	logger *slog.Logger
}

// New creates a Watcher.
func New(cfg Config, loader Loader) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		cfg:    cfg,
		loader: loader,
		logger: cfg.Logger.With("dir", cfg.Dir),
	}
}

// Run loads the files already in the directory and then watches it until
// ctx is done. Files are loaded one at a time; cancelling ctx aborts the
// load in progress.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}
	w.logger.Info("watching for csv files")

	if err := w.ProcessDir(ctx); err != nil {
		w.logger.Warn("initial scan incomplete", "error", err)
	}

	fire := make(chan string)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsCSV(event.Name) {
				continue
			}
			path := event.Name
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
				select {
				case fire <- path:
				case <-ctx.Done():
				}
			})

		case path := <-fire:
			delete(timers, path)
			if err := w.ProcessFile(ctx, path); err != nil {
				w.logger.Error("csv load failed", "file", filepath.Base(path), "error", err)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// ProcessDir loads every CSV file currently in the directory, in name
// order, and returns the failures joined.
func (w *Watcher) ProcessDir(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", w.cfg.Dir, err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !IsCSV(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := w.ProcessFile(ctx, filepath.Join(w.cfg.Dir, entry.Name())); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ProcessFile loads one file and moves it into UploadedDir.
func (w *Watcher) ProcessFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		// Moved away or already loaded by an earlier event.
		return nil
	}

	opts := w.cfg.Options
	opts.Logger = w.logger
	rd, err := csvreader.OpenContext(ctx, path, opts)
	if err != nil {
		return err
	}
	defer rd.Close()

	table := w.cfg.Table
	if table == "" {
		table = load.TableName(path)
	}
	res, err := w.loader.Load(ctx, rd, table)
	if err != nil {
		return err
	}
	rd.Close()

	dest, err := moveToUploaded(path)
	if err != nil {
		return fmt.Errorf("loaded as %s but not moved: %w", res.LoadID, err)
	}
	w.logger.Info("csv file processed",
		"file", filepath.Base(path),
		"table", table,
		"rows", res.Rows,
		"moved_to", dest,
	)
	return nil
}

// IsCSV reports whether name looks like a finished CSV file: a .csv
// extension and not a hidden or lock file.
func IsCSV(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".csv")
}

// moveToUploaded moves path into the UploadedDir next to it. An existing
// file of the same name is kept and the new one gets a timestamp suffix.
func moveToUploaded(path string) (string, error) {
	dir := filepath.Join(filepath.Dir(path), UploadedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	base := filepath.Base(path)
	dest := filepath.Join(dir, base)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(base)
		stamp := time.Now().Format("20060102-150405.000")
		dest = filepath.Join(dir, strings.TrimSuffix(base, ext)+"-"+stamp+ext)
	}

	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}
