package main

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/JonMunkholm/csvreader/csvreader"
	"github.com/JonMunkholm/csvreader/internal/config"
)

// readerFlags are the per-run overrides of the CSV settings.
type readerFlags struct {
	delimiter  string
	enclosure  string
	escape     string
	headerRow  int
	headerCase string
	required   string
	aliases    aliasFlag
	maps       mapFlag
}

func addReaderFlags(fs *flag.FlagSet) *readerFlags {
	f := &readerFlags{aliases: aliasFlag{}}
	fs.StringVar(&f.delimiter, "delimiter", "", "field delimiter (a character or tab, semicolon, pipe)")
	fs.StringVar(&f.enclosure, "enclosure", "", "field enclosure character")
	fs.StringVar(&f.escape, "escape", "", "escape character")
	fs.IntVar(&f.headerRow, "header-row", -1, "zero-based row holding the header")
	fs.StringVar(&f.headerCase, "header-case", "", "rewrite header titles: none, lower, camel")
	fs.StringVar(&f.required, "require", "", "comma-separated fields the header must contain")
	fs.Var(f.aliases, "alias", "alias=field, may be repeated")
	fs.Var(&f.maps, "map", "column=template:field,field (%0 is the first field), may be repeated")
	return f
}

// options layers the flags that were set over the configured options.
func (f *readerFlags) options(cfg *config.Config) (csvreader.Options, error) {
	opts := cfg.ReaderOptions()

	chars := []struct {
		flag  string
		value string
		dst   *rune
	}{
		{"-delimiter", f.delimiter, &opts.Delimiter},
		{"-enclosure", f.enclosure, &opts.Enclosure},
		{"-escape", f.escape, &opts.Escape},
	}
	for _, c := range chars {
		if c.value == "" {
			continue
		}
		r, err := config.ParseChar(c.flag, c.value)
		if err != nil {
			return opts, err
		}
		*c.dst = r
	}

	if f.headerRow >= 0 {
		opts.HeaderRow = f.headerRow
	}
	if f.headerCase != "" {
		hc, err := csvreader.ParseHeaderCase(f.headerCase)
		if err != nil {
			return opts, err
		}
		opts.HeaderCase = hc
	}
	if f.required != "" {
		opts.RequiredHeaders = splitList(f.required)
	}
	if len(f.aliases) > 0 {
		opts.Alias = maps.Clone(f.aliases)
	}
	return opts, nil
}

// open opens source and registers the -map columns.
func (f *readerFlags) open(ctx context.Context, cfg *config.Config, source string) (*csvreader.Reader, error) {
	opts, err := f.options(cfg)
	if err != nil {
		return nil, err
	}
	rd, err := csvreader.OpenContext(ctx, source, opts)
	if err != nil {
		return nil, err
	}
	for _, m := range f.maps {
		if err := rd.AddMap(m); err != nil {
			rd.Close()
			return nil, err
		}
	}
	return rd, nil
}

// aliasFlag collects repeated alias=field pairs.
type aliasFlag map[string]string

func (a aliasFlag) String() string {
	pairs := make([]string, 0, len(a))
	for _, k := range slices.Sorted(maps.Keys(a)) {
		pairs = append(pairs, k+"="+a[k])
	}
	return strings.Join(pairs, ",")
}

func (a aliasFlag) Set(s string) error {
	alias, field, ok := strings.Cut(s, "=")
	alias, field = strings.TrimSpace(alias), strings.TrimSpace(field)
	if !ok || alias == "" || field == "" {
		return fmt.Errorf("alias %q must be alias=field", s)
	}
	a[alias] = field
	return nil
}

// mapFlag collects repeated column=template:field,field definitions.
type mapFlag []csvreader.Map

func (m *mapFlag) String() string {
	cols := make([]string, len(*m))
	for i, mp := range *m {
		cols[i] = mp.Column
	}
	return strings.Join(cols, ",")
}

func (m *mapFlag) Set(s string) error {
	column, rest, ok := strings.Cut(s, "=")
	column = strings.TrimSpace(column)
	if !ok || column == "" {
		return fmt.Errorf("map %q must be column=template:field,...", s)
	}
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		return fmt.Errorf("map %q has no source fields", s)
	}
	fields := splitList(rest[i+1:])
	if len(fields) == 0 {
		return fmt.Errorf("map %q has no source fields", s)
	}
	*m = append(*m, csvreader.NewMap(column, rest[:i], fields...))
	return nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
