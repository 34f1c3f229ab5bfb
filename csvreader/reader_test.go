package csvreader

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const exampleCSV = "testdata/example.csv"
const moviesCSV = "testdata/movies.csv"

func openT(t *testing.T, path string, opts Options) *Reader {
	t.Helper()
	r, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", path, err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func mustString(t *testing.T, r *Reader, name string) string {
	t.Helper()
	v, ok := r.String(name)
	if !ok {
		t.Fatalf("field %q not found", name)
	}
	return v
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestReader_EndToEnd(t *testing.T) {
	r := openT(t, exampleCSV, Options{})

	n, err := r.LineCount()
	if err != nil || n != 2 {
		t.Errorf("LineCount() = %d, %v, want 2", n, err)
	}
	wantTitles := []string{"Item", "SKU", "Qty", "Price", "Cost"}
	if got := r.HeaderTitles(); !reflect.DeepEqual(got, wantTitles) {
		t.Errorf("HeaderTitles() = %v, want %v", got, wantTitles)
	}
	if got := mustString(t, r, "Item"); got != "Harry Potter & The Sorcerer Stone" {
		t.Errorf("Item = %q", got)
	}
	if r.Key() != 1 {
		t.Errorf("Key() = %d, want 1", r.Key())
	}

	ok, err := r.Next()
	if !ok || err != nil {
		t.Fatalf("Next() = %v, %v, want true", ok, err)
	}
	if got := mustString(t, r, "Item"); got != "Curious George" {
		t.Errorf("Item after Next = %q", got)
	}
	if r.Key() != 2 {
		t.Errorf("Key() = %d, want 2", r.Key())
	}

	for i := 0; i < 3; i++ {
		ok, err = r.Next()
		if ok || err != nil {
			t.Fatalf("Next() at end = %v, %v, want false, nil", ok, err)
		}
	}
	if got := mustString(t, r, "Item"); got != "Curious George" {
		t.Errorf("last row should stay current, Item = %q", got)
	}
}

func TestReader_UnknownField(t *testing.T) {
	r := openT(t, exampleCSV, Options{})
	if v, ok := r.Get("Test"); ok || v != nil {
		t.Errorf("Get(Test) = %v, %v, want nil, false", v, ok)
	}
}

func TestReader_Current(t *testing.T) {
	r := openT(t, exampleCSV, Options{})
	row := r.Current()
	if got := row.Names(); !reflect.DeepEqual(got, []string{"Item", "SKU", "Qty", "Price", "Cost"}) {
		t.Errorf("Current().Names() = %v", got)
	}
	if v, _ := row.Get("Item"); v != "Harry Potter & The Sorcerer Stone" {
		t.Errorf("Current() Item = %q", v)
	}
	if row.Map()["SKU"] != "HPSS" {
		t.Errorf("Current().Map() = %v", row.Map())
	}
}

func TestReader_CurrentIgnoresFilters(t *testing.T) {
	r := openT(t, exampleCSV, Options{})
	f, _ := StringFilter("SKU", func(s string) any { return "filtered" })
	r.AddFilter(f)

	if v, _ := r.Current().Get("SKU"); v != "HPSS" {
		t.Errorf("Current() SKU = %q, want raw HPSS", v)
	}
	if got := mustString(t, r, "SKU"); got != "filtered" {
		t.Errorf("String(SKU) = %q, want filtered", got)
	}
}

func TestReader_Rewind(t *testing.T) {
	r := openT(t, moviesCSV, Options{})

	var first []Row
	for _, row := range r.Rows() {
		first = append(first, row)
	}
	if r.Err() != nil {
		t.Fatalf("Rows() error = %v", r.Err())
	}
	if len(first) != 3 {
		t.Fatalf("read %d rows, want 3", len(first))
	}

	if err := r.Rewind(); err != nil {
		t.Fatalf("Rewind() error = %v", err)
	}
	if r.Key() != 1 {
		t.Errorf("Key() after Rewind = %d, want 1", r.Key())
	}

	var second []Row
	for _, row := range r.Rows() {
		second = append(second, row)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("rows after Rewind differ:\n%v\n%v", first, second)
	}
}

func TestReader_HeaderOnSecondRow(t *testing.T) {
	r := openT(t, "testdata/header_on_second_line.csv", Options{HeaderRow: 1})

	if got := mustString(t, r, "header1"); got != "row 1-1" {
		t.Errorf("header1 = %q", got)
	}
	if r.Key() != 2 {
		t.Errorf("Key() = %d, want 2", r.Key())
	}
	if n, _ := r.LineCount(); n != 2 {
		t.Errorf("LineCount() = %d, want 2", n)
	}
	r.Next()
	if got := mustString(t, r, "header2"); got != "row 2-2" {
		t.Errorf("header2 = %q", got)
	}
	if r.Key() != 3 {
		t.Errorf("Key() after Next = %d, want 3", r.Key())
	}
	if err := r.Rewind(); err != nil {
		t.Fatalf("Rewind() error = %v", err)
	}
	if got := mustString(t, r, "header2"); got != "row 1-2" {
		t.Errorf("header2 after Rewind = %q", got)
	}
	if r.Key() != 2 {
		t.Errorf("Key() after Rewind = %d, want 2", r.Key())
	}
}

func TestReader_OpenErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		opts    Options
		wantErr error
	}{
		{"missing file", "nonexistentfile.csv", Options{}, ErrFile},
		{"empty file", "testdata/empty.csv", Options{}, ErrFile},
		{"empty header column", "testdata/empty_header.csv", Options{}, ErrInvalidHeaderOrField},
		{"header row past end", exampleCSV, Options{HeaderRow: 10}, ErrFile},
		{"missing required header", exampleCSV, Options{RequiredHeaders: []string{"Item", "MissingField"}}, ErrInvalidHeaderOrField},
		{"bad option", exampleCSV, Options{HeaderRow: -2}, ErrInvalidOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Open() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReader_HeaderOnlyFile(t *testing.T) {
	_, err := Open(writeCSV(t, "a,b,c\n"), Options{})
	if !errors.Is(err, ErrFile) {
		t.Fatalf("Open() error = %v, want ErrFile", err)
	}
	if !strings.Contains(err.Error(), "no data rows") {
		t.Errorf("error %q should mention missing data rows", err)
	}
}

func TestReader_RequiredHeaderMessage(t *testing.T) {
	req := []string{"Item", "SKU", "Qty", "Price", "Cost", "MissingField"}
	_, err := Open(exampleCSV, Options{RequiredHeaders: req})
	want := "MissingField missing from headers (Item,SKU,Qty,Price,Cost,MissingField)"
	if err == nil || !strings.Contains(err.Error(), want) {
		t.Errorf("error = %v, want it to contain %q", err, want)
	}

	r := openT(t, exampleCSV, Options{RequiredHeaders: req[:5]})
	if got, _ := r.Get(OptRequiredHeaders); !reflect.DeepEqual(got, req[:5]) {
		t.Errorf("requiredHeaders = %v", got)
	}
}

func TestReader_ClosedSource(t *testing.T) {
	r, err := Open(exampleCSV, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Close() {
		t.Error("first Close() = false, want true")
	}
	if r.Close() {
		t.Error("second Close() = true, want false")
	}
	if _, err := r.Next(); !errors.Is(err, ErrFile) {
		t.Errorf("Next() after Close error = %v, want ErrFile", err)
	}
	if err := r.Rewind(); err != nil {
		t.Errorf("Rewind() after Close = %v, want nil", err)
	}
}

func TestReader_Options(t *testing.T) {
	r := openT(t, exampleCSV, Options{Escape: '/'})

	tests := []struct {
		name string
		want any
	}{
		{OptDelimiter, ","},
		{OptEnclosure, `"`},
		{OptEscape, "/"},
		{OptHeaderRowIndex, 0},
		{OptHeaderCase, CaseNone},
		{OptLineCount, 2},
		{OptAlias, map[string]string{}},
	}
	for _, tt := range tests {
		got, ok := r.Get(tt.name)
		if !ok || !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Get(%q) = %v, %v, want %v", tt.name, got, ok, tt.want)
		}
	}
}

func TestReader_OptionShadowsHeader(t *testing.T) {
	r := openT(t, writeCSV(t, "delimiter,value\nx,1\n"), Options{})
	if got := mustString(t, r, "delimiter"); got != "," {
		t.Errorf("delimiter = %q, want option value", got)
	}
	if v, _ := r.Current().Get("delimiter"); v != "x" {
		t.Errorf("Current() delimiter = %q, want x", v)
	}
}

func TestReader_Delimiters(t *testing.T) {
	r := openT(t, "testdata/semicolon.csv", Options{Delimiter: ';'})
	if got := mustString(t, r, "SKU"); got != "HPSS" {
		t.Errorf("SKU = %q", got)
	}

	r = openT(t, "testdata/single_quote.csv", Options{Enclosure: '\''})
	if got := mustString(t, r, "Item"); got != "Potter, Harry" {
		t.Errorf("Item = %q", got)
	}
	r.Next()
	if got := mustString(t, r, "Item"); got != "It's" {
		t.Errorf("Item = %q", got)
	}
}

func TestReader_HeaderCase(t *testing.T) {
	r := openT(t, exampleCSV, Options{HeaderCase: CaseLower})
	if _, ok := r.Get("SKU"); ok {
		t.Error("SKU should not resolve with lowercase headers")
	}
	if got := mustString(t, r, "sku"); got != "HPSS" {
		t.Errorf("sku = %q", got)
	}

	r = openT(t, writeCSV(t, "Phone Number,First Name\n555,Ada\n"), Options{HeaderCase: CaseCamel})
	if got := mustString(t, r, "phoneNumber"); got != "555" {
		t.Errorf("phoneNumber = %q", got)
	}
	if got := r.HeaderTitles(); got[1] != "firstName" {
		t.Errorf("HeaderTitles() = %v, want transformed titles", got)
	}
}

func TestReader_Aliases(t *testing.T) {
	r := openT(t, exampleCSV, Options{Alias: map[string]string{
		"item": "Item",
		"id":   "SKU",
		"bad":  "frank",
	}})

	if got := mustString(t, r, "id"); got != "HPSS" {
		t.Errorf("id = %q, want HPSS", got)
	}
	if v, ok := r.Get("bad"); ok || v != nil {
		t.Errorf("alias to unknown field = %v, %v, want nil, false", v, ok)
	}
	aliases, _ := r.Get(OptAlias)
	if aliases.(map[string]string)["id"] != "SKU" {
		t.Errorf("alias option = %v", aliases)
	}

	if r.AddAlias("id", "Qty") {
		t.Error("AddAlias for an existing alias should fail")
	}
	if r.AddAlias("nope", "Missing") {
		t.Error("AddAlias to a missing field should fail")
	}
	if !r.AddAlias("qty", "Qty") {
		t.Error("AddAlias(qty, Qty) = false")
	}
	if r.AddAlias("chain", "qty") {
		t.Error("alias to an alias should fail")
	}
	if !r.RemoveAlias("qty") || r.RemoveAlias("qty") {
		t.Error("RemoveAlias should succeed once")
	}

	for {
		id, _ := r.String("id")
		sku, _ := r.String("SKU")
		if id != sku {
			t.Errorf("id %q != SKU %q at row %d", id, sku, r.Key())
		}
		if ok, _ := r.Next(); !ok {
			break
		}
	}
}

func TestReader_Filters(t *testing.T) {
	r := openT(t, moviesCSV, Options{Alias: map[string]string{"collection": "tags_collection"}})

	split, _ := StringFilter("tags_collection", func(s string) any { return strings.Split(s, "|") })
	if !r.AddFilter(split) {
		t.Fatal("AddFilter() = false")
	}

	want := []string{"300", "test"}
	for _, name := range []string{"tags_collection", "collection"} {
		got, _ := r.Get(name)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Get(%q) = %v, want %v", name, got, want)
		}
	}

	missing, _ := StringFilter("nope", func(s string) any { return s })
	if r.AddFilter(missing) {
		t.Error("AddFilter on unknown field should fail")
	}
	if r.AddFilter(Filter{Field: "title"}) {
		t.Error("AddFilter without a function should fail")
	}

	if !r.RemoveFilter("tags_collection") || r.RemoveFilter("tags_collection") {
		t.Error("RemoveFilter should succeed once")
	}
	if got := mustString(t, r, "collection"); got != "300|test" {
		t.Errorf("collection after RemoveFilter = %q", got)
	}
}

func TestReader_FilterOnAliasName(t *testing.T) {
	r := openT(t, exampleCSV, Options{Alias: map[string]string{"id": "SKU"}})
	lower, _ := StringFilter("id", func(s string) any { return strings.ToLower(s) })
	if !r.AddFilter(lower) {
		t.Fatal("AddFilter on alias = false")
	}
	if got := mustString(t, r, "id"); got != "hpss" {
		t.Errorf("id = %q, want hpss", got)
	}
	if got := mustString(t, r, "SKU"); got != "HPSS" {
		t.Errorf("SKU = %q, want unfiltered HPSS", got)
	}
}

func TestReader_Maps(t *testing.T) {
	r := openT(t, moviesCSV, Options{})

	tests := []struct {
		column   string
		template string
		fields   []string
		want     string
	}{
		{"full_title", "%0 (%1)", []string{"title", "year"}, "300 (2007)"},
		{"twice", "%0, %0", []string{"id"}, "138, 138"},
		{
			"large",
			"%0, %1, %2, %3, %4, %5, %6, %7, %8, %9, %10",
			[]string{"id", "guid", "media_item_count", "title", "title_sort", "original_title",
				"studio", "content_rating", "duration", "tags_genre", "tags_collection"},
			"138, plex://movie/5d7768296f4521001ea99959, 1, 300, 300, , Virtual Studios, R, 7020000, War|Action, 300|test",
		},
		{
			"short",
			"%0, %1, %2, %3, %4, %5, %6, %7, %8, %9, %10",
			[]string{"id", "guid", "media_item_count", "title", "title_sort", "original_title"},
			"138, plex://movie/5d7768296f4521001ea99959, 1, 300, 300, , %6, %7, %8, %9, plex://movie/5d7768296f4521001ea999590",
		},
		{"extra", "%0, %1, %2", []string{"id", "guid", "media_item_count", "title", "title_sort"},
			"138, plex://movie/5d7768296f4521001ea99959, 1"},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			if err := r.AddMap(NewMap(tt.column, tt.template, tt.fields...)); err != nil {
				t.Fatalf("AddMap() error = %v", err)
			}
			if got := mustString(t, r, tt.column); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.column, got, tt.want)
			}
		})
	}

	if err := r.AddMap(NewMap("full_title", "%0", "id")); !errors.Is(err, ErrInvalidHeaderOrField) {
		t.Errorf("duplicate AddMap() error = %v, want ErrInvalidHeaderOrField", err)
	}
	if err := r.AddMap(NewMap("broken", "%0", "nope")); !errors.Is(err, ErrInvalidHeaderOrField) {
		t.Errorf("AddMap() with unknown field error = %v, want ErrInvalidHeaderOrField", err)
	}

	r.Next()
	if got := mustString(t, r, "full_title"); got != "1984 (1984)" {
		t.Errorf("full_title on row 2 = %q", got)
	}
}

func TestReader_MapOverAliasAndFilter(t *testing.T) {
	r := openT(t, moviesCSV, Options{Alias: map[string]string{"name": "title"}})
	upper, _ := StringFilter("title", func(s string) any { return strings.ToUpper(s) + "!" })
	r.AddFilter(upper)

	if err := r.AddMap(NewMap("label", "%0/%1", "name", "year")); err != nil {
		t.Fatalf("AddMap() error = %v", err)
	}
	if got := mustString(t, r, "label"); got != "300!/2007" {
		t.Errorf("label = %q", got)
	}
}

type film struct {
	ID     string
	Title  string
	Studio string
}

func TestReader_Links(t *testing.T) {
	r := openT(t, moviesCSV, Options{})

	if err := r.AddLink(NewLink("generic", []string{"id", "title"}, nil)); err != nil {
		t.Fatalf("AddLink() error = %v", err)
	}
	got, _ := r.Get("generic")
	if !reflect.DeepEqual(got, Fields{"id": "138", "title": "300"}) {
		t.Errorf("generic = %#v", got)
	}

	ctor := func(f Fields) any {
		return film{ID: f["id"].(string), Title: f["title"].(string), Studio: f["studio"].(string)}
	}
	if err := r.AddLink(NewLink("film", []string{"id", "title", "studio"}, ctor)); err != nil {
		t.Fatalf("AddLink() error = %v", err)
	}
	got, _ = r.Get("film")
	if got != (film{ID: "138", Title: "300", Studio: "Virtual Studios"}) {
		t.Errorf("film = %#v", got)
	}

	if err := r.AddLink(NewLink("film", []string{"id"}, nil)); !errors.Is(err, ErrInvalidHeaderOrField) {
		t.Errorf("duplicate AddLink() error = %v", err)
	}
	if err := r.AddLink(NewLink("bad", []string{"nope"}, nil)); !errors.Is(err, ErrInvalidHeaderOrField) {
		t.Errorf("AddLink() with unknown field error = %v", err)
	}
	if err := r.AddMap(NewMap("generic", "%0", "id")); !errors.Is(err, ErrInvalidHeaderOrField) {
		t.Errorf("AddMap() on a link column error = %v", err)
	}

	if !r.RemoveLink("film") || r.RemoveLink("film") {
		t.Error("RemoveLink should succeed once")
	}
	if _, ok := r.Get("film"); ok {
		t.Error("removed link should not resolve")
	}
}

func TestReader_LinkCycleStopsResolving(t *testing.T) {
	r := openT(t, exampleCSV, Options{})
	if err := r.AddLink(NewLink("b", []string{"SKU"}, nil)); err != nil {
		t.Fatal(err)
	}
	if err := r.AddMap(NewMap("a", "%0", "b")); err != nil {
		t.Fatal(err)
	}
	r.RemoveLink("b")
	if err := r.AddLink(NewLink("b", []string{"a"}, nil)); err != nil {
		t.Fatal(err)
	}
	// Must return rather than recurse forever.
	if _, ok := r.Get("a"); !ok {
		t.Error("Get(a) should still resolve the map itself")
	}
}

func TestReader_LazyLineCount(t *testing.T) {
	eager := openT(t, moviesCSV, Options{})
	lazy := openT(t, moviesCSV, Options{LazyLineCount: true})

	if lazy.lineCounted {
		t.Fatal("lazy reader counted lines while opening")
	}
	lazy.Next()
	want, _ := eager.LineCount()
	got, err := lazy.LineCount()
	if err != nil || got != want {
		t.Errorf("lazy LineCount() = %d, %v, want %d", got, err, want)
	}
	if v, _ := lazy.String("title"); v != "1984" {
		t.Errorf("counting moved the cursor: title = %q", v)
	}
}

func TestReader_ShortRows(t *testing.T) {
	r := openT(t, writeCSV(t, "a,b,c\n1\n"), Options{})

	if v, ok := r.Get("c"); !ok || v != nil {
		t.Errorf("Get(c) = %v, %v, want nil, true", v, ok)
	}
	if v, _ := r.Current().Get("c"); v != "" {
		t.Errorf("Current() c = %q, want empty", v)
	}

	var seen bool
	f, _ := NewFilter("c", func(v *string) any {
		seen = v == nil
		return "default"
	})
	r.AddFilter(f)
	if got := mustString(t, r, "c"); got != "default" || !seen {
		t.Errorf("c = %q (nil seen %v), want default", got, seen)
	}
}

// closeErrReader fails on Close.
type closeErrReader struct {
	*strings.Reader
	closed int
}

func (c *closeErrReader) Close() error {
	c.closed++
	return errors.New("disk went away")
}

func TestReader_CloseReleaseError(t *testing.T) {
	src := &closeErrReader{Reader: strings.NewReader("a,b\n1,2\n")}
	r, err := NewReader(src, Options{})
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if !r.Close() {
		t.Error("first Close() = false, want true when the handle was released with an error")
	}
	if r.Close() {
		t.Error("second Close() = true, want false")
	}
	if src.closed != 1 {
		t.Errorf("underlying Close called %d times, want 1", src.closed)
	}
}

func TestNewReader_BackslashEscapeInQuotes(t *testing.T) {
	r, err := NewReader(strings.NewReader("a,b\n\"x\\\",y\",z\n"), Options{})
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()
	if got := mustString(t, r, "a"); got != `x\",y` {
		t.Errorf("a = %q, want %q", got, `x\",y`)
	}
	if got := mustString(t, r, "b"); got != "z" {
		t.Errorf("b = %q, want z", got)
	}
}

func TestNewReader_StreamWithBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Item,SKU\nBook,B1\n")...)
	r, err := NewReader(bytes.NewReader(data), Options{})
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if got := r.HeaderTitles()[0]; got != "Item" {
		t.Errorf("first title = %q, want BOM stripped", got)
	}

	r, err = NewReader(bytes.NewReader(data), Options{KeepBOM: true})
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if got := r.HeaderTitles()[0]; got != "\ufeffItem" {
		t.Errorf("first title = %q, want BOM kept", got)
	}
	if got := mustString(t, r, "Item"); got != "Book" {
		t.Errorf("Item = %q", got)
	}
}

func TestReader_RowsAfterClose(t *testing.T) {
	r, _ := Open(exampleCSV, Options{})
	r.Close()
	for range r.Rows() {
		t.Fatal("Rows() yielded after Close")
	}
	if !errors.Is(r.Err(), ErrFile) {
		t.Errorf("Err() = %v, want ErrFile", r.Err())
	}
}
