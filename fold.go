package ircx

import "strings"

// IRC compares nicknames, channels and commands case-insensitively using
// the rfc1459 casemapping, under which "{}|^" are the lowercase forms of
// "[]\~". Fold returns the canonical (lowercase) form of s under those
// rules. Folded strings are used as map keys throughout; the original
// spelling is kept alongside for display.
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z':
			c += 'a' - 'A'
		case c == '[':
			c = '{'
		case c == ']':
			c = '}'
		case c == '\\':
			c = '|'
		case c == '~':
			c = '^'
		}
		b.WriteByte(c)
	}
	return b.String()
}

func foldEqual(a, b string) bool {
	return Fold(a) == Fold(b)
}

// foldedSet is a set of strings keyed by their folded form, preserving the
// spelling first seen for display.
type foldedSet map[string]string

func newFoldedSet() foldedSet {
	return make(foldedSet)
}

func (s foldedSet) Add(v string) {
	s[Fold(v)] = v
}

func (s foldedSet) Remove(v string) {
	delete(s, Fold(v))
}

func (s foldedSet) Has(v string) bool {
	_, ok := s[Fold(v)]
	return ok
}

func (s foldedSet) Values() []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}
