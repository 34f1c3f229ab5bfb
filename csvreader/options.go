package csvreader

import (
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"
)

// Defaults applied to zero-valued Options fields.
const (
	DefaultDelimiter = ','
	DefaultEnclosure = '"'
	DefaultEscape    = '\\'

	// DefaultRemoteTimeout bounds the reachability check and download of
	// http(s) sources when Options.HTTPClient is nil.
	DefaultRemoteTimeout = 30 * time.Second
)

// Options configures a Reader. The zero value reads a comma separated file
// with its header on the first row.
type Options struct {
	Delimiter rune
	Enclosure rune
	Escape    rune

	// HeaderRow is the zero-based row holding the column titles.
	HeaderRow int

	// RequiredHeaders are sanitized names that must be present in the header.
	RequiredHeaders []string

	// HeaderCase is applied to raw titles before they are sanitized.
	HeaderCase HeaderCase

	// Alias is the initial alias table (alias → sanitized field name).
	// Entries are installed as given; AddAlias validates later additions.
	Alias map[string]string

	// LazyLineCount defers the line counting scan until LineCount is first
	// called instead of running it while the reader is opened.
	LazyLineCount bool

	// KeepBOM disables stripping of a leading UTF-8 byte order mark.
	KeepBOM bool

	// SanitizeUTF8 replaces invalid UTF-8 bytes with '?'.
	SanitizeUTF8 bool

	// HTTPClient is used for http(s) sources.
	HTTPClient *http.Client

	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// withDefaults merges o over the defaults and validates the result.
func (o Options) withDefaults() (Options, error) {
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	if o.Enclosure == 0 {
		o.Enclosure = DefaultEnclosure
	}
	if o.Escape == 0 {
		o.Escape = DefaultEscape
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: DefaultRemoteTimeout}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.RequiredHeaders = append([]string(nil), o.RequiredHeaders...)
	o.Alias = maps.Clone(o.Alias)
	if o.Alias == nil {
		o.Alias = map[string]string{}
	}

	if o.HeaderRow < 0 {
		return o, fmt.Errorf("%w: header row %d is negative", ErrInvalidOption, o.HeaderRow)
	}
	if o.Delimiter == o.Enclosure {
		return o, fmt.Errorf("%w: delimiter and enclosure are both %q", ErrInvalidOption, o.Delimiter)
	}
	if o.Delimiter == '\n' || o.Delimiter == '\r' || o.Enclosure == '\n' || o.Enclosure == '\r' {
		return o, fmt.Errorf("%w: delimiter and enclosure cannot be line breaks", ErrInvalidOption)
	}
	return o, nil
}
