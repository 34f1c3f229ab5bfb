package csvreader

import "fmt"

// FilterFunc transforms a raw field value. value is nil when the current row
// has no cell for the field. The result may be of any type.
type FilterFunc func(value *string) any

// Filter attaches a FilterFunc to one field or alias name.
type Filter struct {
	Field string
	fn    FilterFunc
}

// NewFilter builds a filter for field. fn must not be nil.
func NewFilter(field string, fn FilterFunc) (Filter, error) {
	if fn == nil {
		return Filter{}, fmt.Errorf("%w: filter for %s", ErrNotInvocable, field)
	}
	return Filter{Field: field, fn: fn}, nil
}

// StringFilter adapts a plain string transform; a missing cell is passed as "".
func StringFilter(field string, fn func(string) any) (Filter, error) {
	if fn == nil {
		return Filter{}, fmt.Errorf("%w: filter for %s", ErrNotInvocable, field)
	}
	return NewFilter(field, func(v *string) any {
		if v == nil {
			return fn("")
		}
		return fn(*v)
	})
}

// Apply runs the filter and returns its result unchanged.
func (f Filter) Apply(value *string) any {
	return f.fn(value)
}
