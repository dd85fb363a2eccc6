package sqlbuild

import "strings"

// Aggregate is a prebuilt aggregate fragment for a SELECT: the expression
// that replaces the result-column list, plus optional GROUP BY columns and a
// HAVING filter (still in JavaScript-like notation; the builder translates
// it).
type Aggregate struct {
	Expr   string
	Group  []string
	Having string

	fn string
}

// AggregateOptions configures the Count/Sum/Avg/Max/Min constructors.
type AggregateOptions struct {
	Column   string
	Group    []string
	Having   string
	Distinct bool
}

// Count builds COUNT(*) when no column is given; DISTINCT is honored only
// together with an explicit column.
func Count(o AggregateOptions) *Aggregate {
	col := "*"
	if o.Column != "" {
		col = ANSI.AsIdentifier(o.Column)
		if o.Distinct {
			col = "DISTINCT " + col
		}
	}
	return makeAggregate("COUNT", col, o)
}

// Sum requires an explicit column; without one the aggregate is omitted
// (nil) and the SELECT falls back to its ordinary column list.
func Sum(o AggregateOptions) *Aggregate {
	return columnAggregate("SUM", o, o.Distinct)
}

// Avg requires an explicit column, like Sum.
func Avg(o AggregateOptions) *Aggregate {
	return columnAggregate("AVG", o, o.Distinct)
}

// Max takes no distinct option.
func Max(o AggregateOptions) *Aggregate {
	return columnAggregate("MAX", o, false)
}

// Min takes no distinct option.
func Min(o AggregateOptions) *Aggregate {
	return columnAggregate("MIN", o, false)
}

func columnAggregate(fn string, o AggregateOptions, distinct bool) *Aggregate {
	if o.Column == "" {
		return nil
	}
	col := ANSI.AsIdentifier(o.Column)
	if distinct {
		col = "DISTINCT " + col
	}
	return makeAggregate(fn, col, o)
}

func makeAggregate(fn, col string, o AggregateOptions) *Aggregate {
	return &Aggregate{
		Expr:   fn + "(" + col + ")",
		Group:  o.Group,
		Having: o.Having,
		fn:     fn,
	}
}

// Function returns the uppercase aggregate function name ("COUNT", ...).
func (a *Aggregate) Function() string { return a.fn }

// ResultName is the column name the aggregate result is renamed to: the
// caller-supplied alias when given, otherwise the lowercased function name.
func (a *Aggregate) ResultName(alias string) string {
	if alias != "" {
		return alias
	}
	return strings.ToLower(a.fn)
}

// RenameAggregateResults rewrites, in place, any result column whose name
// matches the "FN(...)" shape produced by the engine for agg into the name
// ResultName(alias) yields. Records already carrying the target name, and
// empty result sets, are left alone.
func RenameAggregateResults(records []map[string]any, agg *Aggregate, alias string) {
	if agg == nil || len(records) == 0 {
		return
	}
	target := agg.ResultName(alias)
	prefix := agg.fn + "("
	for _, rec := range records {
		for k, v := range rec {
			if k == target {
				continue
			}
			if strings.HasPrefix(k, prefix) && strings.HasSuffix(k, ")") {
				rec[target] = v
				delete(rec, k)
			}
		}
	}
}
