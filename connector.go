// Package alierdb is a client-side relational data-access layer: a small
// query-construction engine that turns declarative get/put/post/delete
// descriptors into SQL text and runs it through a pluggable storage-engine
// Connector, with auto-connect/auto-transaction semantics and per-table
// read-after-write ordering.
package alierdb

import (
	"context"

	"github.com/alierdb/alierdb/sqlbuild"
)

// Record is one result row, keyed by result-column name.
type Record = map[string]any

// Result is the uniform outcome of every read/write/transaction/connection
// verb. Expected failures come back as Status=false with a Message; only
// programming errors are returned as Go errors.
type Result struct {
	Status  bool
	Records []Record
	Message string
}

// TxBehavior selects how a transaction takes its locks. SQLite honors all
// three; engines without the distinction treat everything as Deferred.
type TxBehavior int

const (
	Deferred TxBehavior = iota
	Immediate
	Exclusive
)

// TxIsolation selects the isolation level for engines that support one.
type TxIsolation int

const (
	DefaultIsolation TxIsolation = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

// TxOptions parameterizes StartTransaction. The zero value is always valid.
type TxOptions struct {
	Behavior  TxBehavior
	Isolation TxIsolation
}

// Connector is the storage-engine binding the core depends on but does not
// implement. Expected failures must come back wrapped in *DBError; anything
// else is treated as a bug and propagated.
type Connector interface {
	sqlbuild.Escaper

	// Database names the bound database for diagnostic messages.
	Database() string

	Connect(ctx context.Context) (bool, error)
	Disconnect(ctx context.Context) error

	// Execute runs one statement and returns its result rows (nil for
	// statements that yield none).
	Execute(ctx context.Context, stmt string, params ...any) ([]Record, error)

	StartTransaction(ctx context.Context, opts TxOptions) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	PutSavepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error

	CreateTable(ctx context.Context, schema TableSchema, ifNotExists bool) (TableSchema, error)
	DropTable(ctx context.Context, name string) error
	GetSchema(ctx context.Context) (Schema, error)

	// FixPreparedStatementQuery rewrites '?' placeholders into whatever
	// the engine natively expects (identity for SQLite, $1..$n for
	// Postgres).
	FixPreparedStatementQuery(query string) string
}

// Ender is implemented by connectors holding releasable resources (a
// connection pool, an open file). The pool manager calls End when the last
// database disconnects.
type Ender interface {
	End(ctx context.Context) error
}
