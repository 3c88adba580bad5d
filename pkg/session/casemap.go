package session

import "strings"

// Casemappings understood in ISUPPORT CASEMAPPING.
const (
	CaseMappingASCII         = "ascii"
	CaseMappingRFC1459       = "rfc1459"
	CaseMappingStrictRFC1459 = "strict-rfc1459"
)

// Fold lowercases name under the given casemapping, so names that the server
// considers equal map to the same key.
func Fold(casemapping, name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			c += 'a' - 'A'
		case casemapping == CaseMappingASCII:
		case c == '[':
			c = '{'
		case c == ']':
			c = '}'
		case c == '\\':
			c = '|'
		case c == '~' && casemapping != CaseMappingStrictRFC1459:
			c = '^'
		}
		b.WriteByte(c)
	}
	return b.String()
}
