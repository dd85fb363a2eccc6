// alier-cli is an interactive shell over the AlierDB data-access layer:
// statements accumulate until a terminating ';', run through DB.ExecSQL on
// the configured connector, and print as an aligned table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/chzyer/readline"

	"github.com/alierdb/alierdb"
	"github.com/alierdb/alierdb/internal/config"
	"github.com/alierdb/alierdb/postgres"
	"github.com/alierdb/alierdb/sqlite"
)

func buildConnector(cfg *config.Config) alierdb.Connector {
	if cfg.Driver == "postgres" {
		c := postgres.New(cfg.Postgres.DSN, cfg.Postgres.Database)
		if cfg.Postgres.Schema != "" {
			c.WithSchema(cfg.Postgres.Schema)
		}
		return c
	}
	return sqlite.New(cfg.SQLite.Path)
}

// printResult renders records as an aligned column table, or a bare OK for
// statements without a result set.
func printResult(res alierdb.Result) {
	if !res.Status {
		if res.Message != "" {
			fmt.Printf("FAILED: %s\n", res.Message)
		} else {
			fmt.Println("FAILED")
		}
		return
	}
	if len(res.Records) == 0 {
		fmt.Println("OK")
		return
	}

	// stable column order: sorted keys of the first record
	cols := make([]string, 0, len(res.Records[0]))
	for k := range res.Records[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	cell := func(rec alierdb.Record, col string) string {
		v, ok := rec[col]
		if !ok || v == nil {
			return "NULL"
		}
		return fmt.Sprintf("%v", v)
	}

	// widths are in runes, not bytes, so multi-byte values stay aligned
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = utf8.RuneCountInString(c)
	}
	for _, rec := range res.Records {
		for i, c := range cols {
			if n := utf8.RuneCountInString(cell(rec, c)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	printRow := func(values []string) {
		for i := range cols {
			if i > 0 {
				fmt.Print(" | ")
			}
			fmt.Print(padRight(values[i], widths[i]))
		}
		fmt.Println()
	}

	printRow(cols)
	for i := range cols {
		if i > 0 {
			fmt.Print("-+-")
		}
		fmt.Print(strings.Repeat("-", widths[i]))
	}
	fmt.Println()
	for _, rec := range res.Records {
		out := make([]string, len(cols))
		for i, c := range cols {
			out[i] = cell(rec, c)
		}
		printRow(out)
	}
	fmt.Printf("(%d rows)\n", len(res.Records))
}

func padRight(s string, w int) string {
	n := utf8.RuneCountInString(s)
	if n >= w {
		return s
	}
	return s + strings.Repeat(" ", w-n)
}

func printSchema(ctx context.Context, db *alierdb.DB) {
	schema, err := db.Schema(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schema: %v\n", err)
		return
	}
	for _, ts := range schema.Tables {
		fmt.Println(ts.Name)
		for _, col := range ts.Columns {
			attrs := []string{col.Type}
			if !col.Nullable {
				attrs = append(attrs, "not null")
			}
			if col.Unique {
				attrs = append(attrs, "unique")
			}
			if fk := col.ForeignKey; fk != nil {
				attrs = append(attrs, fmt.Sprintf("-> %s(%s)", fk.Table, fk.Column))
			}
			fmt.Printf("  %-20s %s\n", col.Name, strings.Join(attrs, " "))
		}
		if len(ts.PrimaryKey) > 0 {
			fmt.Printf("  primary key (%s)\n", strings.Join(ts.PrimaryKey, ", "))
		}
	}
}

// statementComplete checks for a terminating ';' outside quotes.
func statementComplete(buf string) bool {
	inQuote := rune(0)
	for _, r := range buf {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
		case r == '\'' || r == '"':
			inQuote = r
		case r == ';':
			return true
		}
	}
	return false
}

func isMetaCommand(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "\\") || line == "quit" || line == "exit"
}

func main() {
	var (
		cfgPath    = flag.String("config", "", "yaml config file (default: in-memory sqlite)")
		histPath   = flag.String("history", defaultHistoryPath(), "history file path")
		histMax    = flag.Int("history-max", 2000, "max history lines loaded into memory")
		oneShotSQL = flag.String("c", "", "execute one statement and exit")
	)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if cfg.HistoryPath != "" {
		*histPath = cfg.HistoryPath
	}

	conn := buildConnector(cfg)
	db, err := alierdb.New(conn, alierdb.Options{
		AutoConnect:     false, // the shell holds one connection for its lifetime
		AutoTransaction: cfg.AutoTransaction,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if res, err := db.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	} else if !res.Status {
		fmt.Fprintf(os.Stderr, "connect: %s\n", res.Message)
		os.Exit(1)
	}
	defer func() { _, _ = db.Disconnect(ctx) }()

	exec := func(stmt string) {
		res, err := db.ExecSQL(ctx, stmt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		printResult(res)
	}

	// one-shot mode
	if strings.TrimSpace(*oneShotSQL) != "" {
		exec(*oneShotSQL)
		return
	}

	h := NewHistory(*histPath)
	_ = h.Load(*histMax)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "alierdb> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range h.lines {
		_ = rl.SaveHistory(line)
	}

	var buf strings.Builder

	fmt.Printf("connected to %s (%s)\n", conn.Database(), cfg.Driver)
	fmt.Println("type \\help for help")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if buf.Len() > 0 {
				buf.Reset()
				rl.SetPrompt("alierdb> ")
				continue
			}
			fmt.Println("^C")
			continue
		}
		if err != nil {
			// EOF
			fmt.Println()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && isMetaCommand(line) {
			switch line {
			case "\\q", "quit", "exit":
				return
			case "\\help":
				fmt.Println(`meta commands:
  \q | quit | exit       quit
  \schema                print the introspected schema
  \history               print history
  \help                  show help

sql:
  end statement with ';'
  multiline is supported (the shell waits for ';')`)
			case "\\schema":
				printSchema(ctx, db)
			case "\\history":
				h.Print(50)
			default:
				fmt.Printf("unknown command: %s\n", line)
			}
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)

		if !statementComplete(buf.String()) {
			rl.SetPrompt("    ...> ")
			continue
		}

		stmt := strings.TrimSpace(buf.String())
		buf.Reset()
		rl.SetPrompt("alierdb> ")

		_ = h.Append(stmt)
		_ = rl.SaveHistory(compactStatement(stmt))
		exec(stmt)
	}
}
