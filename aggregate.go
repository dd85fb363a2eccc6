package alierdb

import "github.com/alierdb/alierdb/sqlbuild"

// Re-exported aggregate surface, so most callers only ever import the root
// package.

type Aggregate = sqlbuild.Aggregate

type AggregateOptions = sqlbuild.AggregateOptions

var (
	Count = sqlbuild.Count
	Sum   = sqlbuild.Sum
	Avg   = sqlbuild.Avg
	Max   = sqlbuild.Max
	Min   = sqlbuild.Min
)

// RenameAggregateResults renames engine-shaped aggregate result columns
// ("COUNT(*)") in place to the alias, or to the lowercased function name
// when alias is empty.
func RenameAggregateResults(records []Record, agg *Aggregate, alias string) {
	sqlbuild.RenameAggregateResults(records, agg, alias)
}
