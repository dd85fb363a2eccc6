package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// History is the shell's statement history: one statement per line in a
// plain text file. Statements are folded onto one line quote-aware, and a
// statement repeated back to back is stored once.
type History struct {
	path  string
	lines []string
}

func NewHistory(path string) *History {
	return &History{path: path}
}

// Load reads the history file, keeping the most recent max lines (all of
// them when max <= 0). A missing file is an empty history.
func (h *History) Load(max int) error {
	if h.path == "" {
		return nil
	}
	data, err := os.ReadFile(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			h.lines = append(h.lines, line)
		}
	}
	if max > 0 && len(h.lines) > max {
		h.lines = h.lines[len(h.lines)-max:]
	}
	return nil
}

// Append records one executed statement, skipping a repeat of the previous
// entry.
func (h *History) Append(stmt string) error {
	stmt = compactStatement(stmt)
	if stmt == "" || h.path == "" {
		return nil
	}
	if n := len(h.lines); n > 0 && h.lines[n-1] == stmt {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, stmt); err != nil {
		return err
	}
	h.lines = append(h.lines, stmt)
	return nil
}

// Print shows the last n entries with their positions.
func (h *History) Print(last int) {
	if last <= 0 || last > len(h.lines) {
		last = len(h.lines)
	}
	for i := len(h.lines) - last; i < len(h.lines); i++ {
		fmt.Printf("%5d  %s\n", i+1, h.lines[i])
	}
}

// compactStatement folds a possibly multiline statement onto one line:
// whitespace runs outside quotes collapse to a single space, but whitespace
// inside string literals and quoted identifiers survives, so recorded SQL
// replays with its literals intact. Newlines inside a literal still become
// spaces, since the file stores one statement per line.
func compactStatement(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inQuote := rune(0)
	pendingSpace := false
	for _, r := range s {
		if inQuote != 0 {
			if r == '\n' || r == '\r' {
				r = ' '
			}
			b.WriteRune(r)
			if r == inQuote {
				inQuote = 0
			}
			continue
		}
		switch r {
		case ' ', '\t', '\n', '\r':
			if b.Len() > 0 {
				pendingSpace = true
			}
		case '\'', '"':
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			inQuote = r
			b.WriteRune(r)
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".alierdb_history"
	}
	return filepath.Join(home, ".alierdb_history")
}
