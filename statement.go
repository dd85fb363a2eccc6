package alierdb

import (
	"strconv"
	"strings"

	"github.com/alierdb/alierdb/sqlbuild"
)

// The statement builders are pure: table handle plus descriptor in, one
// semicolon-terminated statement out. Identifiers and values are routed
// through the connector's escaping; filter/on/having text goes through the
// JavaScript-notation translator; and the assembled text is run through the
// splitter so only the first statement survives, whatever a crafted filter
// smuggled in.

func buildSelect(t *Table, d GetDescriptor, schema *Schema) (string, error) {
	cols, err := resultColumnList(t, d.Aggregate, schema)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(cols)
	b.WriteString(" FROM ")
	b.WriteString(tableExpression(t))

	if f := strings.TrimSpace(d.Filter); f != "" {
		b.WriteString(" WHERE ")
		b.WriteString(sqlbuild.TranslateFilter(f))
	}

	if agg := d.Aggregate; agg != nil {
		if len(agg.Group) > 0 {
			groups := make([]string, 0, len(agg.Group))
			for _, g := range agg.Group {
				groups = append(groups, t.esc().AsIdentifier(g))
			}
			b.WriteString(" GROUP BY ")
			b.WriteString(strings.Join(groups, ", "))
		}
		if h := strings.TrimSpace(agg.Having); h != "" {
			b.WriteString(" HAVING ")
			b.WriteString(sqlbuild.TranslateFilter(h))
		}
	}

	// Pagination is gated on ordering: without ORDER BY the clamped
	// limit/offset values are discarded, because pagination over an
	// unordered result has no defined meaning.
	if order := normalizeSort(d.Sort, t.esc()); len(order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))

		var limit uint64
		haveLimit := false
		if d.Limit != nil {
			limit = sqlbuild.ClampLimit(*d.Limit)
			haveLimit = true
		}
		var offset uint64
		if d.Offset != nil {
			offset = sqlbuild.ClampOffset(*d.Offset)
		}
		if !haveLimit && offset > 0 {
			// An offset still needs a limit clause present; emit the
			// unbounded sentinel.
			limit = sqlbuild.MaxLimit
			haveLimit = true
		}
		if haveLimit {
			b.WriteString(" LIMIT ")
			b.WriteString(strconv.FormatUint(limit, 10))
			if offset > 0 {
				b.WriteString(" OFFSET ")
				b.WriteString(strconv.FormatUint(offset, 10))
			}
		}
	}

	b.WriteString(";")
	return sqlbuild.FirstStatement(b.String()), nil
}

// Assignment columns in UPDATE and INSERT are caller code, not user data;
// they render as written. Values always go through AsValue.

func buildUpdate(t *Table, d PutDescriptor) (string, error) {
	if len(d.Set) == 0 {
		return "", ErrEmptyAssignment
	}
	esc := t.esc()

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(tableExpression(t))
	b.WriteString(" SET ")
	for i, a := range d.Set {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Column)
		b.WriteString("=")
		b.WriteString(esc.AsValue(a.Value))
	}
	if f := strings.TrimSpace(d.Filter); f != "" {
		b.WriteString(" WHERE ")
		b.WriteString(sqlbuild.TranslateFilter(f))
	}
	b.WriteString(";")
	return sqlbuild.FirstStatement(b.String()), nil
}

func buildInsert(t *Table, d PostDescriptor) (string, error) {
	if len(d.Values) == 0 {
		return "", ErrEmptyInsert
	}
	esc := t.esc()

	cols := make([]string, 0, len(d.Values))
	vals := make([]string, 0, len(d.Values))
	for _, a := range d.Values {
		cols = append(cols, a.Column)
		vals = append(vals, esc.AsValue(a.Value))
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableExpression(t))
	b.WriteString("(")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES(")
	b.WriteString(strings.Join(vals, ", "))
	b.WriteString(");")
	return sqlbuild.FirstStatement(b.String()), nil
}

func buildDelete(t *Table, d DeleteDescriptor) (string, error) {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(tableExpression(t))
	if f := strings.TrimSpace(d.Filter); f != "" {
		b.WriteString(" WHERE ")
		b.WriteString(sqlbuild.TranslateFilter(f))
	}
	b.WriteString(";")
	return sqlbuild.FirstStatement(b.String()), nil
}

// tableExpression renders the FROM operand: a plain (possibly aliased)
// table name, or the parenthesized join tree, recursing into joined
// operands on either side.
func tableExpression(t *Table) string {
	esc := t.esc()
	if !t.joined() {
		s := esc.AsIdentifier(t.name)
		if t.alias != "" {
			s += " AS " + esc.AsIdentifier(t.alias)
		}
		return s
	}

	var b strings.Builder
	b.WriteString("(")
	b.WriteString(tableExpression(t.left))
	b.WriteString(" ")
	b.WriteString(t.joinType.Keyword())
	b.WriteString(" ")
	b.WriteString(tableExpression(t.right))
	if on := strings.TrimSpace(t.on); on != "" {
		b.WriteString(" ON ")
		b.WriteString(sqlbuild.TranslateFilter(on))
	}
	if len(t.using) > 0 {
		quoted := make([]string, 0, len(t.using))
		for _, c := range t.using {
			quoted = append(quoted, esc.AsIdentifier(c))
		}
		b.WriteString(" USING (")
		b.WriteString(strings.Join(quoted, ", "))
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}

// resultColumnList picks the SELECT column list: the handle's explicit
// projection when it has one; for joins, each side's columns qualified and
// aliased as <table_or_alias>_<column>; otherwise the aggregate expression
// alone, or "*".
func resultColumnList(t *Table, agg *sqlbuild.Aggregate, schema *Schema) (string, error) {
	esc := t.esc()
	if len(t.columns) > 0 {
		cols := make([]string, 0, len(t.columns))
		for _, c := range t.columns {
			cols = append(cols, esc.AsIdentifier(c))
		}
		return strings.Join(cols, ", "), nil
	}
	if t.joined() {
		cols, err := expandJoinColumns(t, schema)
		if err != nil {
			return "", err
		}
		return strings.Join(cols, ", "), nil
	}
	if agg != nil {
		return agg.Expr, nil
	}
	return "*", nil
}

func expandJoinColumns(t *Table, schema *Schema) ([]string, error) {
	esc := t.esc()
	var cols []string
	for _, side := range [...]*Table{t.left, t.right} {
		if side.joined() {
			sub, err := expandJoinColumns(side, schema)
			if err != nil {
				return nil, err
			}
			cols = append(cols, sub...)
			continue
		}
		label := side.name
		if side.alias != "" {
			label = side.alias
		}
		if schema == nil {
			return nil, ErrUnknownTable
		}
		ts, ok := schema.Table(side.name)
		if !ok {
			return nil, ErrUnknownTable
		}
		for _, col := range ts.Columns {
			cols = append(cols,
				esc.AsIdentifier(label)+"."+esc.AsIdentifier(col.Name)+
					" AS "+esc.AsIdentifier(label+"_"+col.Name))
		}
	}
	return cols, nil
}

// normalizeSort escapes the sort columns, stripping the "!" descending
// prefix and dropping blank entries and a bare "!".
func normalizeSort(sort []string, esc sqlbuild.Escaper) []string {
	var out []string
	for _, s := range sort {
		desc := strings.HasPrefix(s, "!")
		name := strings.TrimPrefix(s, "!")
		if strings.TrimSpace(name) == "" {
			continue
		}
		col := esc.AsIdentifier(name)
		if desc {
			col += " DESC"
		}
		out = append(out, col)
	}
	return out
}
