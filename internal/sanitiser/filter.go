package sanitiser

import (
	"fmt"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// Filter rewrites a rune stream one buffer at a time.
//
// Modify processes buf[from:]. Runes before from are already committed downstream
// and are returned unchanged. It returns the rewritten buffer and the index up to
// which that buffer is final. A consumed index below len(out) asks the driver for
// more input before the remainder can be decided. When eof is true the whole
// buffer must be consumed.
//
// Modify never mutates buf.
type Filter interface {
	Modify(buf []rune, from int, eof bool) (out []rune, consumed int, err error)
}

func checkRange(buf []rune, from int) error {
	if from < 0 || from > len(buf) {
		return fmt.Errorf("%w: modifiable index %d outside buffer of %d", domain.ErrInvalidInput, from, len(buf))
	}
	return nil
}
