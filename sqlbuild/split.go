package sqlbuild

import "strings"

// SplitStatements tokenizes text into semicolon-terminated statements,
// respecting single- and double-quoted regions so a ';' inside a literal is
// not treated as a separator. Leading whitespace is trimmed from each
// statement and a non-empty trailing remainder is terminated with ';'.
//
// The statement builders run their fully assembled text through this and
// keep only the first element, which is what stops a crafted filter or
// value string from smuggling a second statement.
func SplitStatements(text string) []string {
	rs := []rune(text)
	n := len(rs)

	var stmts []string
	var cur strings.Builder

	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s == "" || s == ";" {
			return
		}
		if !strings.HasSuffix(s, ";") {
			s += ";"
		}
		stmts = append(stmts, s)
	}

	for i := 0; i < n; {
		c := rs[i]
		if c == '\'' || c == '"' {
			j := scanQuoted(rs, i)
			cur.WriteString(string(rs[i:j]))
			i = j
			continue
		}
		cur.WriteRune(c)
		i++
		if c == ';' {
			flush()
		}
	}
	flush()
	return stmts
}

// FirstStatement is the injection guard used by every builder: assembled
// text in, exactly one semicolon-terminated statement out.
func FirstStatement(text string) string {
	stmts := SplitStatements(text)
	if len(stmts) == 0 {
		return ""
	}
	return stmts[0]
}

// CountPlaceholders counts the '?' tokens outside quoted regions.
func CountPlaceholders(text string) int {
	rs := []rune(text)
	count := 0
	for i := 0; i < len(rs); {
		switch rs[i] {
		case '\'', '"':
			i = scanQuoted(rs, i)
		case '?':
			count++
			i++
		default:
			i++
		}
	}
	return count
}

// scanQuoted consumes a quoted region starting at rs[start] (which must be
// the opening quote) and returns the index just past the closing quote. A
// doubled quote character inside the region is an escape, not a terminator.
// An unterminated region runs to the end of input.
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
