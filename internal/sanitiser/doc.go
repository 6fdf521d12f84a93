// Package sanitiser cleans XML character streams before a strict parser reads them.
//
// Some servers emit legacy single-byte code page artifacts or control characters
// that XML does not allow inside otherwise well-formed documents. A Filter rewrites
// a rune buffer incrementally; Reader chains filters over an io.Reader and yields
// UTF-8 that encoding/xml accepts.
package sanitiser
