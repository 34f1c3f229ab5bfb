package config

import (
	"fmt"
	"net/http"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/csvreader/csvreader"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := range t.NumField() {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value, ok := os.LookupEnv(envName)
		if !ok || value == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value = os.Getenv(alt)
			}
		}
		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		var result []string
		for p := range strings.SplitSeq(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

var namedChars = map[string]rune{
	"tab":       '\t',
	`\t`:        '\t',
	"semicolon": ';',
	"pipe":      '|',
	"space":     ' ',
	"comma":     ',',
}

// ParseChar turns a single-character setting into a rune. Names such as
// "tab", "semicolon" and "pipe" are accepted.
func ParseChar(name, value string) (rune, error) {
	if r, ok := namedChars[strings.ToLower(value)]; ok {
		return r, nil
	}
	if utf8.RuneCountInString(value) != 1 {
		return 0, fmt.Errorf("%s (%q) must be a single character", name, value)
	}
	r, _ := utf8.DecodeRuneInString(value)
	return r, nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// CSV validation
	delim, err := ParseChar("CSV_DELIMITER", c.CSV.Delimiter)
	if err != nil {
		errs = append(errs, err.Error())
	}
	encl, err := ParseChar("CSV_ENCLOSURE", c.CSV.Enclosure)
	if err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := ParseChar("CSV_ESCAPE", c.CSV.Escape); err != nil {
		errs = append(errs, err.Error())
	}
	if delim != 0 && delim == encl {
		errs = append(errs, "CSV_DELIMITER and CSV_ENCLOSURE must differ")
	}
	if c.CSV.HeaderRow < 0 {
		errs = append(errs, "CSV_HEADER_ROW must be non-negative")
	}
	if _, err := csvreader.ParseHeaderCase(c.CSV.HeaderCase); err != nil {
		errs = append(errs, fmt.Sprintf("CSV_HEADER_CASE (%q) must be one of: none, lower, camel", c.CSV.HeaderCase))
	}
	if c.CSV.RemoteTimeout <= 0 {
		errs = append(errs, "CSV_REMOTE_TIMEOUT must be positive")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequireAPIKey && len(c.Server.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Upload validation
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.PreviewRows <= 0 {
		errs = append(errs, "PREVIEW_ROWS must be positive")
	}
	if c.Upload.MaxPreviewRows < c.Upload.PreviewRows {
		errs = append(errs, fmt.Sprintf("PREVIEW_MAX_ROWS (%d) must be >= PREVIEW_ROWS (%d)",
			c.Upload.MaxPreviewRows, c.Upload.PreviewRows))
	}

	// Database validation
	if !slices.Contains([]string{"postgres", "sqlite"}, strings.ToLower(c.Database.Driver)) {
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, sqlite", c.Database.Driver))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.BatchSize <= 0 {
		errs = append(errs, "LOAD_BATCH_SIZE must be positive")
	}
	if c.Database.Timeout <= 0 {
		errs = append(errs, "LOAD_TIMEOUT must be positive")
	}
	if c.Database.MaxConcurrent <= 0 {
		errs = append(errs, "LOAD_MAX_CONCURRENT must be positive")
	}
	if c.Database.MaxConcurrent > c.Database.MaxConns {
		errs = append(errs, fmt.Sprintf("LOAD_MAX_CONCURRENT (%d) must be <= DB_MAX_CONNS (%d)",
			c.Database.MaxConcurrent, c.Database.MaxConns))
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.UploadLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	// Watch validation
	if c.Watch.Debounce < 0 {
		errs = append(errs, "WATCH_DEBOUNCE must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// RequireDatabase reports an error when no load target is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required for loading")
	}
	return nil
}

// ReaderOptions converts the CSV section into reader options.
// It assumes Validate has passed.
func (c *Config) ReaderOptions() csvreader.Options {
	delim, _ := ParseChar("CSV_DELIMITER", c.CSV.Delimiter)
	encl, _ := ParseChar("CSV_ENCLOSURE", c.CSV.Enclosure)
	esc, _ := ParseChar("CSV_ESCAPE", c.CSV.Escape)
	hc, _ := csvreader.ParseHeaderCase(c.CSV.HeaderCase)

	return csvreader.Options{
		Delimiter:       delim,
		Enclosure:       encl,
		Escape:          esc,
		HeaderRow:       c.CSV.HeaderRow,
		RequiredHeaders: slices.Clone(c.CSV.RequiredHeaders),
		HeaderCase:      hc,
		LazyLineCount:   c.CSV.LazyLineCount,
		KeepBOM:         c.CSV.KeepBOM,
		SanitizeUTF8:    c.CSV.SanitizeUTF8,
		HTTPClient:      &http.Client{Timeout: c.CSV.RemoteTimeout},
	}
}

// String returns a safe string representation of the config for logging.
// The database URL is masked.
func (c *Config) String() string {
	dsn := ""
	if c.Database.URL != "" {
		dsn = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "CSV: {Delimiter: %q, Enclosure: %q, HeaderRow: %d, HeaderCase: %q}, ",
		c.CSV.Delimiter, c.CSV.Enclosure, c.CSV.HeaderRow, c.CSV.HeaderCase)
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: %s, Driver: %q, MaxConns: %d, BatchSize: %d}, ",
		dsn, c.Database.Driver, c.Database.MaxConns, c.Database.BatchSize)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}, ", c.Logging.Level, c.Logging.Format)
	fmt.Fprintf(&b, "Watch: {Dir: %q}", c.Watch.Dir)
	b.WriteString("}")
	return b.String()
}
