package csvreader

// Field is one named cell of a row.
type Field struct {
	Name  string
	Value string
}

// Row is the raw view of a data row: sanitized header names with their cell
// values, in header order. Filters, maps and links are not applied.
type Row []Field

// Get returns the value of the named field.
func (r Row) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Map returns the row as name → value.
func (r Row) Map() map[string]string {
	out := make(map[string]string, len(r))
	for _, f := range r {
		out[f.Name] = f.Value
	}
	return out
}

// Names returns the field names in order.
func (r Row) Names() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Name
	}
	return out
}

// Values returns the cell values in order.
func (r Row) Values() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Value
	}
	return out
}
