// Package templates holds the templ components of the preview pages.
//
// The components are written in preview.templ; preview_templ.go is
// generated from it with `templ generate`.
package templates

// Preview is the data shown by PreviewPage.
type Preview struct {
	Source    string
	Titles    []string
	Fields    []string
	LineCount int
	Rows      []PreviewRow
	Truncated bool
}

// PreviewRow is one data row with its key.
type PreviewRow struct {
	Key    int
	Values []string
}

// fieldName returns the sanitized field name of column i, or "".
func fieldName(p Preview, i int) string {
	if i < len(p.Fields) {
		return p.Fields[i]
	}
	return ""
}
