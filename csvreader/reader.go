package csvreader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"maps"
	"slices"
)

// Names of the configuration values Get answers before looking at row data.
const (
	OptDelimiter       = "delimiter"
	OptEnclosure       = "enclosure"
	OptEscape          = "escape"
	OptHeaderRowIndex  = "headerRowIndex"
	OptRequiredHeaders = "requiredHeaders"
	OptAlias           = "alias"
	OptHeaderCase      = "headerCase"
	OptLineCount       = "lineCount"
)

// maxResolveDepth caps nested map/link resolution. A cycle can only be built
// by removing and re-adding links; past the cap a field resolves as missing.
const maxResolveDepth = 32

// Reader reads a CSV source row by row and exposes fields by header name.
//
// A Reader is positioned on the first data row as soon as it is opened.
// Next advances, Rewind starts over from the header, and Close releases the
// source. A Reader must not be used from more than one goroutine.
type Reader struct {
	opts    Options
	source  string
	logger  *slog.Logger
	rs      io.ReadSeeker
	release func() error
	closed  bool

	records recordReader
	header  *Header
	data    []string
	index   int

	// exhausted is set once Next hits the end of the stream.
	exhausted bool
	err       error

	lineCount   int
	lineCounted bool

	aliases map[string]string
	filters map[string]Filter
	maps    map[string]Map
	links   map[string]Link
}

// Open opens a local path or an http(s) URL.
func Open(source string, opts Options) (*Reader, error) {
	return OpenContext(context.Background(), source, opts)
}

// OpenContext is Open with a context bounding remote probing and download.
func OpenContext(ctx context.Context, source string, opts Options) (*Reader, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	src, err := openSource(ctx, source, o.HTTPClient)
	if err != nil {
		return nil, err
	}
	return newReader(source, src.rs, src.release, o)
}

// NewReader reads from rs, which must support seeking to its start.
// If rs is an io.Closer the Reader takes ownership and closes it.
func NewReader(rs io.ReadSeeker, opts Options) (*Reader, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	release := func() error { return nil }
	if c, ok := rs.(io.Closer); ok {
		release = c.Close
	}
	return newReader("stream", rs, release, o)
}

func newReader(source string, rs io.ReadSeeker, release func() error, o Options) (*Reader, error) {
	r := &Reader{
		opts:    o,
		source:  source,
		logger:  o.Logger,
		rs:      rs,
		release: release,
		aliases: o.Alias,
		filters: make(map[string]Filter),
		maps:    make(map[string]Map),
		links:   make(map[string]Link),
	}

	if err := r.start(); err != nil {
		_ = release()
		return nil, err
	}

	r.logger.Debug("csv opened",
		"source", source,
		"header_row", o.HeaderRow,
		"columns", r.header.Len(),
	)
	return r, nil
}

// start locates the header, counts lines unless deferred, and reads the
// first data row.
func (r *Reader) start() error {
	if err := r.locateHeader(); err != nil {
		return err
	}
	if !r.opts.LazyLineCount {
		if err := r.countLines(); err != nil {
			return err
		}
	}
	ok, err := r.Next()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no data rows after header in %s", ErrFile, r.source)
	}
	return nil
}

// locateHeader seeks to the start of the stream and reads up to and
// including the header row.
func (r *Reader) locateHeader() error {
	if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to start: %v", ErrFile, err)
	}
	r.records = newRecordReader(wrapStream(r.rs, r.opts), r.opts)
	r.data = nil
	r.exhausted = false
	r.err = nil

	for row := 0; ; row++ {
		rec, err := r.records.Read()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: header row %d not found in %s", ErrFile, r.opts.HeaderRow, r.source)
		}
		if err != nil {
			return fmt.Errorf("%w: read header: %v", ErrFile, err)
		}
		if row < r.opts.HeaderRow {
			continue
		}

		h, err := NewHeader(r.opts.HeaderCase.Apply(rec), r.opts.RequiredHeaders)
		if err != nil {
			return err
		}
		r.header = h
		r.index = row
		return nil
	}
}

// countLines scans the whole source with a separate record reader and
// restores the stream offset afterwards.
func (r *Reader) countLines() error {
	pos, err := r.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFile, err)
	}
	if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrFile, err)
	}
	total, countErr := countRecords(wrapStream(r.rs, r.opts), r.opts)
	if _, err := r.rs.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrFile, err)
	}
	if countErr != nil {
		return fmt.Errorf("%w: count lines: %v", ErrFile, countErr)
	}

	r.lineCount = max(total-(r.opts.HeaderRow+1), 0)
	r.lineCounted = true
	return nil
}

// Next reads the next row. It returns false at the end of the stream and
// keeps the last row current; further calls keep returning false.
// Calling Next on a closed Reader is an ErrFile error.
func (r *Reader) Next() (bool, error) {
	if r.closed {
		return false, fmt.Errorf("%w: file is no longer open", ErrFile)
	}
	if r.exhausted {
		return false, nil
	}

	rec, err := r.records.Read()
	if errors.Is(err, io.EOF) {
		r.exhausted = true
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read record %d of %s: %w", r.index+1, r.source, err)
	}

	r.data = rec
	r.index++
	return true, nil
}

// Rewind starts over: the header is located and validated again and the
// first data row becomes current. It does nothing on a closed Reader.
func (r *Reader) Rewind() error {
	if r.closed {
		return nil
	}
	if err := r.locateHeader(); err != nil {
		return err
	}
	if _, err := r.Next(); err != nil {
		return err
	}
	r.logger.Debug("csv rewound", "source", r.source)
	return nil
}

// Key returns the zero-based position of the current row in the stream, so
// the first data row after a header on row h is h+1.
func (r *Reader) Key() int {
	return r.index
}

// Current returns the raw current row in header order. Cells missing from a
// short row are empty.
func (r *Reader) Current() Row {
	fields := r.header.Fields()
	row := make(Row, len(fields))
	for i, f := range fields {
		row[i] = Field{Name: f.Name}
		if f.Index < len(r.data) {
			row[i].Value = r.data[f.Index]
		}
	}
	return row
}

// Rows iterates from the current row to the end of the stream, yielding
// Key and Current for each row. Check Err after the loop.
func (r *Reader) Rows() iter.Seq2[int, Row] {
	return func(yield func(int, Row) bool) {
		if r.closed {
			r.err = fmt.Errorf("%w: file is no longer open", ErrFile)
			return
		}
		if r.exhausted {
			return
		}
		for {
			if !yield(r.Key(), r.Current()) {
				return
			}
			ok, err := r.Next()
			if err != nil {
				r.err = err
				return
			}
			if !ok {
				return
			}
		}
	}
}

// Err returns the error that stopped the last Rows loop, if any.
func (r *Reader) Err() error {
	return r.err
}

// Close releases the source. It reports whether an open source was released:
// true on the first call, false afterwards. An error from releasing the
// handle is logged; the Reader is closed either way.
func (r *Reader) Close() bool {
	if r.closed {
		return false
	}
	r.closed = true
	if err := r.release(); err != nil {
		r.logger.Warn("csv close failed", "source", r.source, "error", err)
		return true
	}
	r.logger.Debug("csv closed", "source", r.source)
	return true
}

// HeaderTitles returns the original header titles in file order.
func (r *Reader) HeaderTitles() []string {
	if r.header == nil {
		return nil
	}
	return r.header.Titles()
}

// Header returns the current header.
func (r *Reader) Header() *Header {
	return r.header
}

// LineCount returns the number of data rows after the header.
func (r *Reader) LineCount() (int, error) {
	if !r.lineCounted {
		if r.closed {
			return 0, fmt.Errorf("%w: file is no longer open", ErrFile)
		}
		if err := r.countLines(); err != nil {
			return 0, err
		}
	}
	return r.lineCount, nil
}

// Options returns the effective options.
func (r *Reader) Options() Options {
	o := r.opts
	o.RequiredHeaders = slices.Clone(o.RequiredHeaders)
	o.Alias = r.Aliases()
	return o
}

// Aliases returns a copy of the alias table.
func (r *Reader) Aliases() map[string]string {
	return maps.Clone(r.aliases)
}

// Source returns the path or URL the Reader was opened with.
func (r *Reader) Source() string {
	return r.source
}
