package textparse

import (
	"strings"
	"unicode/utf8"

	apperr "github.com/misli/misli-go/internal/errors"
)

// NoLimit disables the length limit in Extract.
const NoLimit = -1

// Boundary is an optional delimiter character. The zero value is None.
type Boundary struct {
	r   rune
	set bool
}

// None means "do not trim" on the start side and "run to end of text" on
// the end side.
var None = Boundary{}

// Rune returns a boundary on r. Any rune is valid, including NUL.
func Rune(r rune) Boundary {
	return Boundary{r: r, set: true}
}

// IsSet reports whether b names a real character.
func (b Boundary) IsSet() bool {
	return b.set
}

func (b Boundary) String() string {
	if !b.set {
		return "none"
	}
	return string(b.r)
}

// Extract returns the text strictly between the first start boundary and
// the first end boundary after it.
//
// If limit is non-negative, source is cut to its first limit characters
// before searching. A start of None keeps the whole prefix; an end of None
// keeps everything after the start. A boundary that is set but absent
// yields ErrNotFound. Adjacent boundaries yield "" and a nil error.
func Extract(source string, start, end Boundary, limit int) (string, error) {
	txt := truncateRunes(source, limit)

	if start.set {
		i := strings.IndexRune(txt, start.r)
		if i < 0 {
			return "", apperr.ErrNotFound
		}
		_, width := utf8.DecodeRuneInString(txt[i:])
		txt = txt[i+width:]
	}

	if !end.set {
		return txt, nil
	}

	j := strings.IndexRune(txt, end.r)
	if j < 0 {
		return "", apperr.ErrNotFound
	}

	return txt[:j], nil
}

// truncateRunes keeps the first n characters of s. Negative n keeps all.
func truncateRunes(s string, n int) string {
	if n < 0 {
		return s
	}

	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}

	return s
}
