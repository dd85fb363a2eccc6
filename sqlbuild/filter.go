package sqlbuild

import "strings"

// TranslateFilter rewrites a JavaScript-flavored boolean expression into the
// SQL equivalent:
//
//	&&            -> AND
//	||            -> OR
//	== null       -> IS NULL      (also ===, and undefined)
//	!= null       -> IS NOT NULL  (also !==, and undefined)
//	==  ===       -> =
//	!=  !==       -> !=
//	!  !!  !!!    -> NOT by parity (odd count prefixes the next token)
//
// Quoted regions (single- or double-quoted, with doubled-quote escaping) are
// copied through untouched, so operator-looking text inside a literal is
// never rewritten. This is a textual rewrite only; no SQL grammar is parsed
// or validated.
func TranslateFilter(expr string) string {
	rs := []rune(expr)
	n := len(rs)
	var out strings.Builder
	out.Grow(len(expr) + 16)

	i := 0
	for i < n {
		c := rs[i]
		switch {
		case c == '\'' || c == '"':
			j := scanQuoted(rs, i)
			out.WriteString(string(rs[i:j]))
			i = j

		case c == '&' && i+1 < n && rs[i+1] == '&':
			i += 2
			writeKeyword(&out, rs, i, "AND")

		case c == '|' && i+1 < n && rs[i+1] == '|':
			i += 2
			writeKeyword(&out, rs, i, "OR")

		case c == '!' && (i+1 >= n || rs[i+1] != '='):
			// A run of negations. The final '!' may actually open a != or
			// !== comparison; that one is left for the comparison case.
			run := 0
			for i+run < n && rs[i+run] == '!' {
				run++
			}
			negs := run
			if i+run < n && rs[i+run] == '=' {
				negs--
			}
			i += negs
			if negs%2 == 1 {
				writeKeyword(&out, rs, i, "NOT")
			}

		case c == '=' && i+1 < n && rs[i+1] == '=':
			opLen := 2
			if i+2 < n && rs[i+2] == '=' {
				opLen = 3
			}
			i += opLen
			if j, ok := matchNullWord(rs, i); ok {
				writeKeyword(&out, rs, j, "IS NULL")
				i = j
			} else {
				out.WriteByte('=')
			}

		case c == '!' && i+1 < n && rs[i+1] == '=':
			opLen := 2
			if i+2 < n && rs[i+2] == '=' {
				opLen = 3
			}
			i += opLen
			if j, ok := matchNullWord(rs, i); ok {
				writeKeyword(&out, rs, j, "IS NOT NULL")
				i = j
			} else {
				out.WriteString("!=")
			}

		default:
			out.WriteRune(c)
			i++
		}
	}
	return out.String()
}

// writeKeyword emits word with enough surrounding whitespace that it cannot
// fuse with adjacent identifier characters ("a&&b" -> "a AND b"). next is
// the input position right after the consumed operator.
func writeKeyword(out *strings.Builder, rs []rune, next int, word string) {
	if s := out.String(); s != "" && !endsWithBoundary(s) {
		out.WriteByte(' ')
	}
	out.WriteString(word)
	if next < len(rs) && rs[next] != ' ' && rs[next] != '\t' && rs[next] != '\n' && rs[next] != '\r' {
		out.WriteByte(' ')
	}
}

func endsWithBoundary(s string) bool {
	switch s[len(s)-1] {
	case ' ', '\t', '\n', '\r', '(':
		return true
	}
	return false
}

// matchNullWord reports whether the input at i (after optional whitespace)
// is the bare word "null" or "undefined". On a match it returns the index
// just past the word.
func matchNullWord(rs []rune, i int) (int, bool) {
	j := i
	for j < len(rs) && isSpaceRune(rs[j]) {
		j++
	}
	for _, word := range [...]string{"null", "undefined"} {
		w := []rune(word)
		if j+len(w) > len(rs) {
			continue
		}
		if string(rs[j:j+len(w)]) != word {
			continue
		}
		if j+len(w) < len(rs) && isWordRune(rs[j+len(w)]) {
			continue
		}
		return j + len(w), true
	}
	return i, false
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isWordRune(r rune) bool {
	return r == '_' || r == '$' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
