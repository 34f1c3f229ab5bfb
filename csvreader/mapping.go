package csvreader

import (
	"strconv"
	"strings"
)

// Map composes a synthetic column from other fields using a template with
// positional placeholders: %0 is the first field, %1 the second, and so on.
type Map struct {
	Column   string
	Template string
	Fields   []string
}

// NewMap builds a Map. Fields are resolved by the Reader when Column is read.
func NewMap(column, template string, fields ...string) Map {
	return Map{
		Column:   column,
		Template: template,
		Fields:   append([]string(nil), fields...),
	}
}

// Render substitutes values into the template.
// Substitution runs from the highest index down so %1 never eats the
// prefix of %10. Placeholders without a value are left as is.
func (m Map) Render(values []string) string {
	out := m.Template
	for i := len(values) - 1; i >= 0; i-- {
		out = strings.ReplaceAll(out, "%"+strconv.Itoa(i), values[i])
	}
	return out
}
