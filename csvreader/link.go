package csvreader

import "fmt"

// Fields is the generic record a Link builds: source field name → resolved value.
type Fields map[string]any

// LinkConstructor turns the generic record into a caller-defined value.
type LinkConstructor func(Fields) any

// Link aggregates several fields into one value under a synthetic column.
type Link struct {
	Column    string
	Fields    []string
	construct LinkConstructor
}

// NewLink builds a Link. construct may be nil, in which case the generic
// Fields record is returned when the column is read.
func NewLink(column string, fields []string, construct LinkConstructor) Link {
	return Link{
		Column:    column,
		Fields:    append([]string(nil), fields...),
		construct: construct,
	}
}

// NewLinkFunc is NewLink for callers that require a constructor.
func NewLinkFunc(column string, fields []string, construct LinkConstructor) (Link, error) {
	if construct == nil {
		return Link{}, fmt.Errorf("%w: link constructor for %s", ErrNotInvocable, column)
	}
	return NewLink(column, fields, construct), nil
}

// Resolve returns the constructor's result, or values itself when the link
// has no constructor.
func (l Link) Resolve(values Fields) any {
	if l.construct == nil {
		return values
	}
	return l.construct(values)
}
