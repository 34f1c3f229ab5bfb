package csvreader

// resolve.go implements field access by name.
//
// A name is resolved in a fixed order, the first match winning:
//
//  1. option names (delimiter, enclosure, escape, headerRowIndex,
//     requiredHeaders, alias, headerCase, lineCount)
//  2. alias substitution, one hop only
//  3. maps, whose source fields are resolved through this same order
//  4. links, likewise
//  5. header fields, passed through the field's filter when one is set
//
// Anything else is not found. Unknown names are never an error.

import (
	"fmt"
	"slices"
)

// Get resolves name against the options, aliases, maps, links and header of
// the current row. The bool is false when nothing matches.
func (r *Reader) Get(name string) (any, bool) {
	return r.resolve(name, 0)
}

// String is Get for callers that want text. Non-string results are
// formatted with fmt; a missing cell is "".
func (r *Reader) String(name string) (string, bool) {
	v, ok := r.Get(name)
	if !ok {
		return "", false
	}
	return stringify(v), true
}

func (r *Reader) resolve(name string, depth int) (any, bool) {
	if depth > maxResolveDepth {
		return nil, false
	}

	if v, ok := r.option(name); ok {
		return v, true
	}

	field := name
	if target, ok := r.aliases[name]; ok {
		field = target
	}

	if m, ok := r.maps[field]; ok {
		values := make([]string, len(m.Fields))
		for i, f := range m.Fields {
			v, _ := r.resolve(f, depth+1)
			values[i] = stringify(v)
		}
		return m.Render(values), true
	}

	if l, ok := r.links[field]; ok {
		values := make(Fields, len(l.Fields))
		for _, f := range l.Fields {
			v, _ := r.resolve(f, depth+1)
			values[f] = v
		}
		return l.Resolve(values), true
	}

	idx, ok := r.header.FieldIndex(field)
	if !ok {
		return nil, false
	}
	var raw *string
	if idx < len(r.data) {
		v := r.data[idx]
		raw = &v
	}

	if f, ok := r.filterFor(name, field); ok {
		return f.Apply(raw), true
	}
	if raw == nil {
		return nil, true
	}
	return *raw, true
}

// filterFor prefers the filter on the canonical field over one on the alias.
func (r *Reader) filterFor(name, field string) (Filter, bool) {
	if f, ok := r.filters[field]; ok {
		return f, true
	}
	if name != field {
		f, ok := r.filters[name]
		return f, ok
	}
	return Filter{}, false
}

func (r *Reader) option(name string) (any, bool) {
	switch name {
	case OptDelimiter:
		return string(r.opts.Delimiter), true
	case OptEnclosure:
		return string(r.opts.Enclosure), true
	case OptEscape:
		return string(r.opts.Escape), true
	case OptHeaderRowIndex:
		return r.opts.HeaderRow, true
	case OptRequiredHeaders:
		return slices.Clone(r.opts.RequiredHeaders), true
	case OptAlias:
		return r.Aliases(), true
	case OptHeaderCase:
		return r.opts.HeaderCase, true
	case OptLineCount:
		n, err := r.LineCount()
		if err != nil {
			r.logger.Warn("csv line count failed", "source", r.source, "error", err)
			return nil, false
		}
		return n, true
	}
	return nil, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// AddAlias makes alias resolve to field. It fails when the alias is taken
// or field is not in the header.
func (r *Reader) AddAlias(alias, field string) bool {
	if _, ok := r.aliases[alias]; ok {
		return false
	}
	if !r.header.FieldExists(field) {
		return false
	}
	r.aliases[alias] = field
	return true
}

// RemoveAlias deletes an alias.
func (r *Reader) RemoveAlias(alias string) bool {
	if _, ok := r.aliases[alias]; !ok {
		return false
	}
	delete(r.aliases, alias)
	return true
}

// AddFilter registers f for its field, replacing an earlier filter on the
// same name. The field must be a header field or an alias.
//
// A filter registered under an alias is applied when the value is read
// through that alias and the aliased field has no filter of its own; a
// filter on the field itself always wins. Readers that only honour filters
// on canonical field names accept such a filter but never run it.
func (r *Reader) AddFilter(f Filter) bool {
	if f.fn == nil {
		return false
	}
	_, isAlias := r.aliases[f.Field]
	if !r.header.FieldExists(f.Field) && !isAlias {
		return false
	}
	r.filters[f.Field] = f
	return true
}

// RemoveFilter deletes the filter registered for name.
func (r *Reader) RemoveFilter(name string) bool {
	if _, ok := r.filters[name]; !ok {
		return false
	}
	delete(r.filters, name)
	return true
}

// AddMap registers a map. The column must be unused by other maps and links
// and every source field must resolve.
func (r *Reader) AddMap(m Map) error {
	if err := r.checkSynthetic("map", m.Column, m.Fields); err != nil {
		return err
	}
	r.maps[m.Column] = m
	return nil
}

// RemoveMap deletes a map.
func (r *Reader) RemoveMap(column string) bool {
	if _, ok := r.maps[column]; !ok {
		return false
	}
	delete(r.maps, column)
	return true
}

// AddLink registers a link, with the same rules as AddMap.
func (r *Reader) AddLink(l Link) error {
	if err := r.checkSynthetic("link", l.Column, l.Fields); err != nil {
		return err
	}
	r.links[l.Column] = l
	return nil
}

// RemoveLink deletes a link. It reports whether the link existed.
func (r *Reader) RemoveLink(column string) bool {
	if _, ok := r.links[column]; !ok {
		return false
	}
	delete(r.links, column)
	return true
}

func (r *Reader) checkSynthetic(kind, column string, fields []string) error {
	if column == "" {
		return fmt.Errorf("%w: %s column name is empty", ErrInvalidHeaderOrField, kind)
	}
	if _, ok := r.maps[column]; ok {
		return fmt.Errorf("%w: %s column %s already exists", ErrInvalidHeaderOrField, kind, column)
	}
	if _, ok := r.links[column]; ok {
		return fmt.Errorf("%w: %s column %s already exists", ErrInvalidHeaderOrField, kind, column)
	}
	for _, f := range fields {
		if !r.resolvable(f) {
			return fmt.Errorf("%w: header for %s not found (%s)", ErrInvalidHeaderOrField, kind, f)
		}
	}
	return nil
}

// resolvable reports whether name can be a map or link source field.
func (r *Reader) resolvable(name string) bool {
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	if r.header.FieldExists(name) {
		return true
	}
	_, isMap := r.maps[name]
	_, isLink := r.links[name]
	return isMap || isLink
}
