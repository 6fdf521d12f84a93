package sanitiser

import (
	"fmt"
	"regexp"
	"unicode"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// Ensure XMLVersionModifier implements Filter.
var _ Filter = (*XMLVersionModifier)(nil)

const (
	// DefaultXMLVersion is the only version encoding/xml accepts.
	DefaultXMLVersion = "1.0"

	// DefaultMaxPrologLength bounds the lookahead spent on the XML declaration, in runes.
	DefaultMaxPrologLength = 1024

	byteOrderMark = '\uFEFF'
	declOpen      = "<?xml"
	declClose     = "?>"
)

var (
	versionAttr  = regexp.MustCompile(`version\s*=\s*("[^"]*"|'[^']*')`)
	encodingAttr = regexp.MustCompile(`encoding\s*=\s*("[^"]*"|'[^']*')`)
)

// XMLVersionModifier makes sure a stream starts with an XML declaration of a
// fixed version. An existing declaration has its version rewritten in place.
// A stream without one gets a declaration inserted after any byte order mark.
// After the declaration has been handled everything passes through untouched.
type XMLVersionModifier struct {
	// Version is written into the declaration. Empty means DefaultXMLVersion.
	Version string

	// Encoding, when set, replaces an existing encoding attribute.
	Encoding string

	// MaxPrologLength bounds the declaration length. Zero means DefaultMaxPrologLength.
	MaxPrologLength int

	done bool
}

// NewXMLVersionModifier returns a modifier that declares version 1.0.
func NewXMLVersionModifier() *XMLVersionModifier {
	return &XMLVersionModifier{Version: DefaultXMLVersion}
}

// Modify handles the declaration on the first buffer that contains enough of it.
func (m *XMLVersionModifier) Modify(buf []rune, from int, eof bool) ([]rune, int, error) {
	if err := checkRange(buf, from); err != nil {
		return nil, 0, err
	}
	if m.done {
		return buf, len(buf), nil
	}

	seg := buf[from:]
	start := 0
	if len(seg) > 0 && seg[0] == byteOrderMark {
		start = 1
	}
	rest := seg[start:]

	if len(rest) == 0 && eof {
		// Empty document.
		m.done = true
		return buf, len(buf), nil
	}

	isDecl, decided := m.startsWithDeclaration(rest, eof)
	if !decided {
		return buf, from, nil
	}

	var replacement []rune
	end := start
	if isDecl {
		closeAt := indexRunes(rest, declClose)
		limit := m.maxPrologLength()
		if closeAt < 0 {
			switch {
			case len(rest) > limit:
				return nil, 0, fmt.Errorf("%w: no %q within %d characters", domain.ErrPrologTooLong, declClose, limit)
			case eof:
				return nil, 0, fmt.Errorf("%w: unterminated xml declaration", domain.ErrMalformedResponse)
			default:
				return buf, from, nil
			}
		}
		if closeAt+len(declClose) > limit {
			return nil, 0, fmt.Errorf("%w: declaration longer than %d characters", domain.ErrPrologTooLong, limit)
		}
		end = start + closeAt + len(declClose)
		replacement = []rune(m.rewrite(string(rest[:closeAt+len(declClose)])))
	} else {
		replacement = []rune(`<?xml version="` + m.version() + `"?>`)
	}

	out := make([]rune, 0, len(buf)+len(replacement))
	out = append(out, buf[:from+start]...)
	out = append(out, replacement...)
	out = append(out, seg[end:]...)
	m.done = true
	return out, len(out), nil
}

// Reset prepares the modifier for a new stream.
func (m *XMLVersionModifier) Reset() {
	m.done = false
}

// startsWithDeclaration reports whether rest opens with an XML declaration.
// decided is false while the available input is too short to tell.
func (m *XMLVersionModifier) startsWithDeclaration(rest []rune, eof bool) (isDecl, decided bool) {
	n := len(declOpen)
	if len(rest) <= n {
		if !hasRunePrefix(declOpen, rest) {
			return false, true
		}
		// "<?xml" alone, or a prefix of it, needs the next rune to rule out "<?xml-stylesheet".
		return false, eof
	}
	if !hasRunePrefix(declOpen, rest[:n]) {
		return false, true
	}
	next := rest[n]
	return unicode.IsSpace(next) || next == '?', true
}

func (m *XMLVersionModifier) rewrite(decl string) string {
	version := `version="` + m.version() + `"`
	if loc := versionAttr.FindStringIndex(decl); loc != nil {
		decl = decl[:loc[0]] + version + decl[loc[1]:]
	} else {
		decl = declOpen + " " + version + decl[len(declOpen):]
	}
	if m.Encoding != "" {
		if loc := encodingAttr.FindStringIndex(decl); loc != nil {
			decl = decl[:loc[0]] + `encoding="` + m.Encoding + `"` + decl[loc[1]:]
		}
	}
	return decl
}

func (m *XMLVersionModifier) version() string {
	if m.Version == "" {
		return DefaultXMLVersion
	}
	return m.Version
}

func (m *XMLVersionModifier) maxPrologLength() int {
	if m.MaxPrologLength <= 0 {
		return DefaultMaxPrologLength
	}
	return m.MaxPrologLength
}

// hasRunePrefix reports whether rs is a prefix of s.
func hasRunePrefix(s string, rs []rune) bool {
	want := []rune(s)
	if len(rs) > len(want) {
		return false
	}
	for i, r := range rs {
		if want[i] != r {
			return false
		}
	}
	return true
}

func indexRunes(rs []rune, sub string) int {
	want := []rune(sub)
	for i := 0; i+len(want) <= len(rs); i++ {
		match := true
		for j, r := range want {
			if rs[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
