package alierdb

import "github.com/alierdb/alierdb/sqlbuild"

// JoinType enumerates the nine join flavors the table-expression renderer
// knows. AlierDB silently falls back to InnerJoin for anything else.
type JoinType int

const (
	InnerJoin JoinType = iota
	CrossJoin
	LeftJoin
	RightJoin
	FullJoin
	NaturalInnerJoin
	NaturalLeftJoin
	NaturalRightJoin
	NaturalFullJoin
)

var joinKeywords = map[JoinType]string{
	CrossJoin:        "CROSS JOIN",
	InnerJoin:        "INNER JOIN",
	LeftJoin:         "LEFT OUTER JOIN",
	RightJoin:        "RIGHT OUTER JOIN",
	FullJoin:         "FULL OUTER JOIN",
	NaturalInnerJoin: "NATURAL INNER JOIN",
	NaturalLeftJoin:  "NATURAL LEFT OUTER JOIN",
	NaturalRightJoin: "NATURAL RIGHT OUTER JOIN",
	NaturalFullJoin:  "NATURAL FULL OUTER JOIN",
}

// Keyword renders the SQL join keyword, defaulting to INNER JOIN.
func (j JoinType) Keyword() string {
	if kw, ok := joinKeywords[j]; ok {
		return kw
	}
	return joinKeywords[InnerJoin]
}

func (j JoinType) natural() bool {
	switch j {
	case NaturalInnerJoin, NaturalLeftJoin, NaturalRightJoin, NaturalFullJoin:
		return true
	}
	return false
}

// RecordFunc is the per-record callback Get applies to each result row.
type RecordFunc func(record Record, index int) error

// GetDescriptor parameterizes a read.
//
// Limit and Offset are float64 pointers on purpose: the clamping contract
// distinguishes fractional, negative, NaN and out-of-range inputs, and nil
// means "not set" (which matters — an offset without a limit forces the
// unbounded limit sentinel into the statement).
type GetDescriptor struct {
	// Filter is a JavaScript-like boolean expression for the WHERE clause.
	Filter string
	// Sort lists result-ordering columns; a "!" prefix means descending.
	// Blank entries and a lone "!" are dropped. Without any surviving sort
	// column no ORDER BY is emitted and pagination is suppressed entirely.
	Sort []string
	// Aggregate replaces the result-column list with a single aggregate
	// expression (see sqlbuild.Count and friends).
	Aggregate *sqlbuild.Aggregate
	// AggregateAs names the renamed aggregate result column; empty means
	// the lowercased function name.
	AggregateAs string
	// ForEach runs once per result record before the records are returned.
	ForEach RecordFunc
	// Final runs once with the record count, after ForEach and renaming.
	Final func(count int) error

	Limit  *float64
	Offset *float64
}

// Assignment is one column/value pair. Put and Post take ordered slices so
// generated statements list columns in the order the caller wrote them.
type Assignment struct {
	Column string
	Value  any
}

// Set is a convenience constructor for assignment lists:
//
//	table.Post(ctx, alierdb.PostDescriptor{Values: alierdb.Set("name", "Alice")})
func Set(pairs ...any) []Assignment {
	var out []Assignment
	for i := 0; i+1 < len(pairs); i += 2 {
		col, ok := pairs[i].(string)
		if !ok {
			continue
		}
		out = append(out, Assignment{Column: col, Value: pairs[i+1]})
	}
	return out
}

// PutDescriptor parameterizes an update: the assignments plus an optional
// row filter. An empty assignment list is an error, not a no-op.
type PutDescriptor struct {
	Set    []Assignment
	Filter string
}

// PostDescriptor parameterizes an insert.
type PostDescriptor struct {
	Values []Assignment
}

// DeleteDescriptor parameterizes a delete. An empty filter deletes every
// row.
type DeleteDescriptor struct {
	Filter string
}

// JoinDescriptor parameterizes Table.Join. Non-natural inner/left/right/
// full joins take exactly one of On and Using; cross and natural joins take
// neither.
type JoinDescriptor struct {
	Table *Table
	Type  JoinType
	// On is a join condition in JavaScript-like notation.
	On string
	// Using lists the shared join columns.
	Using []string
}

// TableRef names the table DB.Get hands back a handle for, with an optional
// projection and alias. A non-empty Columns list makes the handle virtual
// (read-only for post/delete).
type TableRef struct {
	Table   string
	Columns []string
	Alias   string
}
