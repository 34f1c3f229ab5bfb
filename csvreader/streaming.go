package csvreader

// streaming.go provides the stream hygiene applied between the source and
// the record reader:
//
//   - skipBOM: drops a UTF-8 BOM (0xEF 0xBB 0xBF) written by Windows tools
//   - utf8Sanitizer: replaces invalid UTF-8 bytes with '?' on the fly
//
// Both work in O(buffer) memory. Use wrapStream to apply them in order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader positioned after a leading BOM, if there is one.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?'.
// The replacement is one byte so data can be rewritten in place.
type utf8Sanitizer struct {
	r io.Reader

	// pending holds the start of a multi-byte sequence cut by the previous read.
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]

	var err error
	if n < len(p) {
		var m int
		m, err = s.r.Read(p[n:])
		n += m
	}
	if n == 0 {
		return 0, err
	}
	atEOF := err != nil

	w := 0
	for i := 0; i < n; {
		if p[i] < utf8.RuneSelf {
			p[w] = p[i]
			w++
			i++
			continue
		}
		r, size := utf8.DecodeRune(p[i:n])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(p[i:n]) {
				s.pending = append(s.pending[:0:0], p[i:n]...)
				break
			}
			p[w] = '?'
			w++
			i++
			continue
		}
		copy(p[w:], p[i:i+size])
		w += size
		i += size
	}

	return w, err
}

// wrapStream applies BOM stripping and UTF-8 sanitizing as configured.
func wrapStream(r io.Reader, o Options) io.Reader {
	if !o.KeepBOM {
		r = skipBOM(r)
	}
	if o.SanitizeUTF8 {
		r = newUTF8Sanitizer(r)
	}
	return r
}
