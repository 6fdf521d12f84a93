package sanitiser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

const readChunk = 4096

// Reader applies a chain of filters to a byte stream and yields UTF-8.
//
// Input is decoded as UTF-8. Bytes that do not form valid UTF-8 are decoded as
// Windows-1252, the usual origin of such bytes in mail server output.
// Each filter sees only runes the filters before it have finished with.
type Reader struct {
	src     io.Reader
	filters []Filter

	raw    []byte // undecoded input
	buf    []rune // decoded runes not yet emitted
	marks  []int  // per filter, how far into buf it has finished
	out    []byte // encoded output waiting for Read
	srcEOF bool
	err    error
}

// NewReader creates a reader that runs filters in order over src.
func NewReader(src io.Reader, filters ...Filter) *Reader {
	return &Reader{
		src:     src,
		filters: filters,
		marks:   make([]int, len(filters)),
	}
}

// NewDefaultReader declares XML 1.0 in UTF-8 and applies DefaultRule.
func NewDefaultReader(src io.Reader) *Reader {
	chars, err := NewCharacterModifier(DefaultRule())
	if err != nil {
		// DefaultRule only names BMP code points.
		panic(err)
	}
	version := NewXMLVersionModifier()
	version.Encoding = "UTF-8"
	return NewReader(src, version, chars)
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	for {
		if len(r.out) > 0 {
			n := copy(p, r.out)
			r.out = r.out[n:]
			return n, nil
		}
		if r.err != nil {
			return 0, r.err
		}
		if err := r.fill(); err != nil {
			r.err = err
			continue
		}
		if err := r.filter(); err != nil {
			r.err = err
			continue
		}
		r.emit()
		if r.srcEOF && len(r.buf) == 0 && len(r.raw) == 0 && len(r.out) == 0 {
			r.err = io.EOF
		}
	}
}

// fill reads one chunk from the source and decodes what it can.
func (r *Reader) fill() error {
	if !r.srcEOF {
		chunk := make([]byte, readChunk)
		n, err := r.src.Read(chunk)
		r.raw = append(r.raw, chunk[:n]...)
		switch {
		case errors.Is(err, io.EOF):
			r.srcEOF = true
		case err != nil:
			return err
		}
	}

	for len(r.raw) > 0 {
		if !utf8.FullRune(r.raw) && !r.srcEOF {
			break
		}
		c, size := utf8.DecodeRune(r.raw)
		if c == utf8.RuneError && size == 1 {
			c = charmap.Windows1252.DecodeByte(r.raw[0])
			if c == utf8.RuneError {
				// Undefined in Windows-1252; keep the C1 control so rules can delete it.
				c = rune(r.raw[0])
			}
		}
		r.buf = append(r.buf, c)
		r.raw = r.raw[size:]
	}
	return nil
}

// filter runs every filter over the runes its predecessors have released.
func (r *Reader) filter() error {
	for i, f := range r.filters {
		limit := len(r.buf)
		if i > 0 {
			limit = r.marks[i-1]
		}
		eof := r.srcEOF && len(r.raw) == 0 && limit == len(r.buf)

		out, consumed, err := f.Modify(r.buf[:limit], r.marks[i], eof)
		if err != nil {
			return err
		}
		if consumed < r.marks[i] || consumed > len(out) || (eof && consumed != len(out)) {
			return fmt.Errorf("%w: filter %d reported %d of %d runes", domain.ErrInvalidInput, i, consumed, len(out))
		}

		delta := len(out) - limit
		next := make([]rune, 0, len(out)+len(r.buf)-limit)
		next = append(next, out...)
		next = append(next, r.buf[limit:]...)
		r.buf = next

		for j := 0; j < i; j++ {
			r.marks[j] += delta
		}
		r.marks[i] = consumed
	}
	return nil
}

// emit encodes the runes every filter has finished with.
func (r *Reader) emit() {
	ready := len(r.buf)
	if n := len(r.filters); n > 0 {
		ready = r.marks[n-1]
	}
	if ready == 0 {
		return
	}
	for _, c := range r.buf[:ready] {
		r.out = utf8.AppendRune(r.out, c)
	}
	r.buf = append(r.buf[:0:0], r.buf[ready:]...)
	for i := range r.marks {
		r.marks[i] -= ready
	}
}

// Sanitise runs data through the default filters.
func Sanitise(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if _, err := io.Copy(&out, NewDefaultReader(bytes.NewReader(data))); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
