package csvreader

// record.go turns a byte stream into records.
//
// encoding/csv handles the '"' enclosure when escaping is disabled (escape
// set to the enclosure). Everything else, the default backslash escape
// included, goes through tokenizer, which follows the same rules with the
// configured characters:
//
//   - a field starting with the enclosure is quoted until a lone enclosure
//   - a doubled enclosure inside a quoted field is one literal enclosure
//   - the escape character keeps the next character literal (both are kept)
//   - line breaks inside quoted fields belong to the field
//   - blank lines are skipped

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// recordReader yields one record per call and io.EOF at the end of the stream.
type recordReader interface {
	Read() ([]string, error)
}

func newRecordReader(r io.Reader, o Options) recordReader {
	if o.Enclosure == '"' && o.Escape == o.Enclosure {
		cr := csv.NewReader(r)
		cr.Comma = o.Delimiter
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		return cr
	}
	t := &tokenizer{
		r:         bufio.NewReader(r),
		delimiter: o.Delimiter,
		enclosure: o.Enclosure,
		escape:    o.Escape,
	}
	if t.escape == t.enclosure {
		t.escape = noEscape
	}
	return t
}

// noEscape disables escape handling; ReadRune never returns a negative rune.
const noEscape rune = -1

type tokenizer struct {
	r         *bufio.Reader
	delimiter rune
	enclosure rune
	escape    rune
}

func (t *tokenizer) Read() ([]string, error) {
	for {
		rec, blank, err := t.readLine()
		if err != nil {
			return nil, err
		}
		if !blank {
			return rec, nil
		}
	}
}

// readLine reads one physical record. blank is true for an empty line.
func (t *tokenizer) readLine() (rec []string, blank bool, err error) {
	var (
		field    strings.Builder
		quoted   bool
		started  bool
		anyInput bool
	)

	endField := func() {
		rec = append(rec, field.String())
		field.Reset()
		quoted = false
		started = false
	}

	for {
		c, _, rerr := t.r.ReadRune()
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				return nil, false, rerr
			}
			if !anyInput {
				return nil, false, io.EOF
			}
			endField()
			return rec, false, nil
		}
		anyInput = true

		if quoted {
			switch c {
			case t.escape:
				field.WriteRune(c)
				next, _, nerr := t.r.ReadRune()
				if nerr == nil {
					field.WriteRune(next)
				}
			case t.enclosure:
				next, _, nerr := t.r.ReadRune()
				if nerr == nil && next == t.enclosure {
					field.WriteRune(c)
					continue
				}
				if nerr == nil {
					_ = t.r.UnreadRune()
				}
				quoted = false
			default:
				field.WriteRune(c)
			}
			continue
		}

		switch {
		case c == t.enclosure && !started:
			quoted = true
			started = true
		case c == t.delimiter:
			endField()
		case c == '\r':
			if next, _, nerr := t.r.ReadRune(); nerr == nil && next != '\n' {
				_ = t.r.UnreadRune()
			}
			return t.finishLine(rec, &field, started)
		case c == '\n':
			return t.finishLine(rec, &field, started)
		default:
			started = true
			field.WriteRune(c)
		}
	}
}

func (t *tokenizer) finishLine(rec []string, field *strings.Builder, started bool) ([]string, bool, error) {
	if len(rec) == 0 && !started && field.Len() == 0 {
		return nil, true, nil
	}
	return append(rec, field.String()), false, nil
}

// countRecords reads r to the end and returns the number of records in it.
func countRecords(r io.Reader, o Options) (int, error) {
	rr := newRecordReader(r, o)
	n := 0
	for {
		_, err := rr.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
