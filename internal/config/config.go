// Package config loads csvreader tool settings from environment variables.
// Unset values fall back to struct tag defaults and the result is validated
// once at startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all tool configuration.
type Config struct {
	CSV      CSVConfig
	Server   ServerConfig
	Upload   UploadConfig
	Database DatabaseConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
	Watch    WatchConfig
}

// CSVConfig holds the default reader options. Single-character values accept
// the names "tab", "semicolon", "pipe" and "space" as well as the character.
type CSVConfig struct {
	Delimiter string `env:"CSV_DELIMITER" default:","`
	Enclosure string `env:"CSV_ENCLOSURE" default:"\""`
	Escape    string `env:"CSV_ESCAPE" default:"\\"`

	// HeaderRow is the zero-based row holding the column titles.
	HeaderRow int `env:"CSV_HEADER_ROW" default:"0"`

	// RequiredHeaders is a comma-separated list of sanitized field names.
	RequiredHeaders []string `env:"CSV_REQUIRED_HEADERS"`

	// HeaderCase is none, lower or camel.
	HeaderCase string `env:"CSV_HEADER_CASE" default:"none"`

	LazyLineCount bool `env:"CSV_LAZY_LINE_COUNT" default:"false"`
	KeepBOM       bool `env:"CSV_KEEP_BOM" default:"false"`
	SanitizeUTF8  bool `env:"CSV_SANITIZE_UTF8" default:"false"`

	// RemoteTimeout bounds probing and downloading http(s) sources.
	RemoteTimeout time.Duration `env:"CSV_REMOTE_TIMEOUT" default:"30s"`
}

// ServerConfig holds preview server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// PreviewDir is the directory local preview sources are resolved in.
	// Empty disables previewing local paths; uploads and URLs still work.
	PreviewDir string `env:"PREVIEW_DIR"`

	// AllowRemote lets previews fetch http(s) sources. Off by default: the
	// server would otherwise fetch any URL a client names.
	AllowRemote bool `env:"PREVIEW_ALLOW_REMOTE" default:"false"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP and X-Forwarded-For headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects the preview routes (the HTML page and /api)
	// with the X-API-Key header.
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// UploadConfig limits files posted to the preview endpoint.
type UploadConfig struct {
	// MaxFileSize is the largest accepted upload in bytes (default: 32MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"33554432"`

	// PreviewRows is the default number of rows a preview returns.
	PreviewRows int `env:"PREVIEW_ROWS" default:"20"`

	// MaxPreviewRows caps the limit query parameter.
	MaxPreviewRows int `env:"PREVIEW_MAX_ROWS" default:"500"`
}

// DatabaseConfig holds load target settings. URL is only needed by the load
// and watch commands, which check it themselves.
type DatabaseConfig struct {
	// URL is a PostgreSQL connection string or a SQLite file path.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// Driver is postgres or sqlite.
	Driver string `env:"DB_DRIVER" default:"postgres"`

	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// BatchSize is the number of rows per INSERT statement.
	BatchSize int `env:"LOAD_BATCH_SIZE" default:"1000"`

	// Timeout bounds a single load.
	Timeout time.Duration `env:"LOAD_TIMEOUT" default:"10m"`

	// UseCopy sends PostgreSQL rows with COPY instead of INSERT batches.
	UseCopy bool `env:"LOAD_USE_COPY" default:"true"`

	// MaxConcurrent limits parallel loads; MaxWait bounds the wait for a slot.
	MaxConcurrent int           `env:"LOAD_MAX_CONCURRENT" default:"2"`
	MaxWait       time.Duration `env:"LOAD_MAX_WAIT" default:"30s"`
}

// RateLimitConfig holds per-IP rate limiting for the preview server.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for POST /api/preview.
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// WatchConfig holds directory watcher settings.
type WatchConfig struct {
	Dir string `env:"WATCH_DIR" default:"."`

	// Table receives rows of watched files; empty derives it from the file name.
	Table string `env:"WATCH_TABLE"`

	// Debounce waits for writes to settle before a new file is loaded.
	Debounce time.Duration `env:"WATCH_DEBOUNCE" default:"500ms"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
