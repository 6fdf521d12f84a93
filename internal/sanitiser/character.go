package sanitiser

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// Ensure CharacterModifier implements Filter.
var _ Filter = (*CharacterModifier)(nil)

// Rule describes which code points a CharacterModifier replaces or deletes.
// A code point present in both Replace and Delete is replaced.
type Rule struct {
	Replace map[rune]rune
	Delete  []rune
}

// DefaultRule maps C1 controls that are really Windows-1252 punctuation to the
// characters they stand for and deletes control characters XML forbids.
// Tab, line feed and carriage return are kept.
func DefaultRule() Rule {
	rule := Rule{Replace: make(map[rune]rune)}
	for c := rune(0); c < 0x20; c++ {
		if c != '\t' && c != '\n' && c != '\r' {
			rule.Delete = append(rule.Delete, c)
		}
	}
	for b := 0x80; b <= 0x9F; b++ {
		r := charmap.Windows1252.DecodeByte(byte(b))
		if r == utf8.RuneError {
			// Undefined in Windows-1252: 0x81, 0x8D, 0x8F, 0x90 and 0x9D.
			rule.Delete = append(rule.Delete, rune(b))
			continue
		}
		rule.Replace[rune(b)] = r
	}
	rule.Delete = append(rule.Delete, 0xFFFE, 0xFFFF)
	return rule
}

// CharacterModifier replaces or deletes single code points.
type CharacterModifier struct {
	replace map[rune]rune
	remove  map[rune]struct{}
}

// NewCharacterModifier validates a rule and builds a modifier for it.
// Code points must be single UTF-16 units: anything above U+FFFF or a
// surrogate half is rejected with domain.ErrInvalidRule.
func NewCharacterModifier(rule Rule) (*CharacterModifier, error) {
	m := &CharacterModifier{
		replace: make(map[rune]rune, len(rule.Replace)),
		remove:  make(map[rune]struct{}, len(rule.Delete)),
	}
	for from, to := range rule.Replace {
		if err := checkCodePoint(from); err != nil {
			return nil, err
		}
		if err := checkCodePoint(to); err != nil {
			return nil, err
		}
		m.replace[from] = to
	}
	for _, r := range rule.Delete {
		if err := checkCodePoint(r); err != nil {
			return nil, err
		}
		m.remove[r] = struct{}{}
	}
	return m, nil
}

func checkCodePoint(r rune) error {
	if r < 0 || r > 0xFFFF || utf16.IsSurrogate(r) {
		return fmt.Errorf("%w: code point %U", domain.ErrInvalidRule, r)
	}
	return nil
}

// Modify replaces and deletes code points in buf[from:].
// Every input rune is examined exactly once, so a rune following a deleted
// one is never skipped. Character rules need no lookahead; the whole buffer
// is always consumed.
func (m *CharacterModifier) Modify(buf []rune, from int, _ bool) ([]rune, int, error) {
	if err := checkRange(buf, from); err != nil {
		return nil, 0, err
	}

	out := make([]rune, from, len(buf))
	copy(out, buf[:from])
	for _, r := range buf[from:] {
		if to, ok := m.replace[r]; ok {
			out = append(out, to)
			continue
		}
		if _, ok := m.remove[r]; ok {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}
