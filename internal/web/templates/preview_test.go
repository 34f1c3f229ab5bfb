package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestPreviewTable_EscapesCells(t *testing.T) {
	p := Preview{
		Source:    "example.csv",
		Titles:    []string{"Item", "<b>SKU</b>"},
		Fields:    []string{"Item", "bSKUb"},
		LineCount: 2,
		Rows: []PreviewRow{
			{Key: 1, Values: []string{"Harry Potter & The Sorcerer Stone", "<script>"}},
		},
		Truncated: true,
	}

	var buf bytes.Buffer
	if err := PreviewTable(p).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Harry Potter &amp; The Sorcerer Stone",
		"&lt;script&gt;",
		"&lt;b&gt;SKU&lt;/b&gt;",
		`title="bSKUb"`,
		"2 data rows, 2 columns",
		"Showing the first 1 rows",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Error("cell value was not escaped")
	}
}

func TestErrorPage(t *testing.T) {
	var buf bytes.Buffer
	err := ErrorPage("missing.csv", "The file could not be read", "Check the path", "FILE001").
		Render(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "<!DOCTYPE html>") || !strings.HasSuffix(out, "</html>") {
		t.Errorf("page not wrapped in layout: %q", out)
	}
	for _, want := range []string{"The file could not be read", "Check the path", "FILE001", `value="missing.csv"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestIndexPage(t *testing.T) {
	var buf bytes.Buffer
	if err := IndexPage().Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"<title>CSV preview</title>", `action="/preview"`, `value=""`, "</body></html>"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
