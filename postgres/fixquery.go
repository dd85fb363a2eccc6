package postgres

import (
	"strconv"
	"strings"
)

// FixPlaceholders rewrites '?' placeholders into the $1..$n form, skipping
// quoted regions (single- or double-quoted, doubled-quote escaping) so a
// question mark inside a literal survives.
func FixPlaceholders(query string) string {
	rs := []rune(query)
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for i := 0; i < len(rs); {
		c := rs[i]
		if c == '\'' || c == '"' {
			j := scanQuoted(rs, i)
			b.WriteString(string(rs[i:j]))
			i = j
			continue
		}
		if c == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			i++
			continue
		}
		b.WriteRune(c)
		i++
	}
	return b.String()
}

func scanQuoted(rs []rune, start int) int {
	q := rs[start]
	i := start + 1
	for i < len(rs) {
		if rs[i] == q {
			if i+1 < len(rs) && rs[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(rs)
}
