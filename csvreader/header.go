package csvreader

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// invalidNameChars matches every character that cannot appear in a field name.
var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// HeaderCase selects a transform applied to raw titles before they are sanitized.
type HeaderCase int

const (
	CaseNone HeaderCase = iota
	CaseLower
	CaseCamel
)

// String returns the config spelling of the case ("none", "lower", "camel").
func (c HeaderCase) String() string {
	switch c {
	case CaseLower:
		return "lower"
	case CaseCamel:
		return "camel"
	default:
		return "none"
	}
}

// ParseHeaderCase converts a config value into a HeaderCase.
func ParseHeaderCase(s string) (HeaderCase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CaseNone, nil
	case "lower":
		return CaseLower, nil
	case "camel", "camelcase":
		return CaseCamel, nil
	default:
		return CaseNone, fmt.Errorf("%w: unknown header case %q", ErrInvalidOption, s)
	}
}

// Apply runs the transform over titles. CaseNone returns a copy.
func (c HeaderCase) Apply(titles []string) []string {
	switch c {
	case CaseLower:
		return ToLowerCase(titles)
	case CaseCamel:
		return ToCamelCase(titles)
	default:
		return append([]string(nil), titles...)
	}
}

// HeaderField is a sanitized field name and its zero-based column index.
type HeaderField struct {
	Name  string
	Index int
}

// Header maps sanitized column titles to column indices.
// It is built once per header row and never modified afterwards.
type Header struct {
	titles []string
	names  []string
	index  map[string]int
}

// NewHeader sanitizes titles and checks that every name in required is present.
// The first missing required name (in the order given) is reported.
func NewHeader(titles []string, required []string) (*Header, error) {
	if len(titles) == 0 {
		return nil, fmt.Errorf("%w: header row is empty", ErrInvalidHeaderOrField)
	}

	h := &Header{
		titles: append([]string(nil), titles...),
		names:  make([]string, 0, len(titles)),
		index:  make(map[string]int, len(titles)),
	}

	for i, title := range titles {
		name := Sanitize(title)
		if name == "" {
			return nil, fmt.Errorf("%w: empty header at column %d (%q)", ErrInvalidHeaderOrField, i, title)
		}
		// A later duplicate wins the index but keeps the first position.
		if _, seen := h.index[name]; !seen {
			h.names = append(h.names, name)
		}
		h.index[name] = i
	}

	for _, name := range required {
		if _, ok := h.index[name]; !ok {
			return nil, fmt.Errorf("%w: %s missing from headers (%s)",
				ErrInvalidHeaderOrField, name, strings.Join(required, ","))
		}
	}

	return h, nil
}

// Sanitize strips every character outside [A-Za-z0-9_].
func Sanitize(title string) string {
	return invalidNameChars.ReplaceAllString(title, "")
}

// FieldIndex returns the column index of a sanitized name.
func (h *Header) FieldIndex(name string) (int, bool) {
	i, ok := h.index[name]
	return i, ok
}

// FieldExists reports whether name is a sanitized header name.
func (h *Header) FieldExists(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Fields returns every sanitized name with its index, in header order.
func (h *Header) Fields() []HeaderField {
	out := make([]HeaderField, len(h.names))
	for i, name := range h.names {
		out[i] = HeaderField{Name: name, Index: h.index[name]}
	}
	return out
}

// Titles returns the original titles in file order.
func (h *Header) Titles() []string {
	return append([]string(nil), h.titles...)
}

// Len returns the number of distinct sanitized names.
func (h *Header) Len() int {
	return len(h.names)
}

// ToLowerCase lowercases every title.
func ToLowerCase(titles []string) []string {
	lower := cases.Lower(language.Und)
	out := make([]string, len(titles))
	for i, t := range titles {
		out[i] = lower.String(t)
	}
	return out
}

// ToCamelCase converts space separated titles to camelCase ("Phone Number"
// becomes "phoneNumber"). Only the first letter of the following words is
// changed; punctuation does not start a word ("Ship mail-order" becomes
// "shipMail-order").
func ToCamelCase(titles []string) []string {
	lower := cases.Lower(language.Und)
	upper := cases.Upper(language.Und)

	out := make([]string, len(titles))
	for i, t := range titles {
		words := strings.Split(t, " ")
		var b strings.Builder
		b.WriteString(lower.String(words[0]))
		for _, w := range words[1:] {
			first, size := utf8.DecodeRuneInString(w)
			if size == 0 {
				continue
			}
			b.WriteString(upper.String(string(first)))
			b.WriteString(w[size:])
		}
		out[i] = b.String()
	}
	return out
}
