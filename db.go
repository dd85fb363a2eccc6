package alierdb

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// DB owns one connector, the auto-connect/auto-transaction flags, the named
// prepared statements and the in-memory schema. It hands out Table handles
// via Get; all statement execution funnels through ExecSQL.
type DB struct {
	conn Connector
	pool *Pool

	autoConnect     bool
	autoTransaction bool

	mu       sync.Mutex
	schema   *Schema
	prepared map[string]*PreparedStatement
	order    []string
}

// Options configures New. The zero value means: explicit connect and
// transaction management, shared DefaultPool.
type Options struct {
	AutoConnect     bool
	AutoTransaction bool
	// Pool overrides the connection pool manager shared with other DB
	// instances; nil means DefaultPool.
	Pool *Pool
	// Schema seeds the in-memory schema, skipping the first introspection
	// round-trip. Mostly useful in tests.
	Schema *Schema
}

// New binds a database handle to a connector.
func New(conn Connector, opts Options) (*DB, error) {
	if conn == nil {
		return nil, ErrNilConnector
	}
	pool := opts.Pool
	if pool == nil {
		pool = DefaultPool
	}
	return &DB{
		conn:            conn,
		pool:            pool,
		autoConnect:     opts.AutoConnect,
		autoTransaction: opts.AutoTransaction,
		schema:          opts.Schema,
		prepared:        make(map[string]*PreparedStatement),
	}, nil
}

// Connector exposes the bound connector.
func (db *DB) Connector() Connector { return db.conn }

// resolveError converts a recognized database error into the uniform
// failure result (logging it); anything else is returned as-is.
func (db *DB) resolveError(op string, err error) (Result, error) {
	if dbe, ok := AsDBError(err); ok {
		slog.Error("alierdb: "+op+" failed", "database", db.conn.Database(), "err", err)
		return Result{Status: false, Message: dbe.Message}, nil
	}
	return Result{}, err
}

// ExecSQL runs one statement through the connector and wraps the outcome in
// the uniform result shape.
func (db *DB) ExecSQL(ctx context.Context, stmt string, params ...any) (Result, error) {
	records, err := db.conn.Execute(ctx, stmt, params...)
	if err != nil {
		return db.resolveError("execute", err)
	}
	return Result{Status: true, Records: records}, nil
}

// Connect acquires a connection through the pool manager.
func (db *DB) Connect(ctx context.Context) (Result, error) {
	ok, err := db.pool.Acquire(ctx, db.conn)
	if err != nil {
		return db.resolveError("connect", err)
	}
	return Result{Status: ok}, nil
}

// Disconnect releases the connection. Recognized database errors — the
// connector's own disconnect failing, or a pool teardown aggregate whose
// constituents are all recognized — resolve to the uniform failure shape;
// a teardown aggregate holding any foreign error is internal and
// propagates.
func (db *DB) Disconnect(ctx context.Context) (Result, error) {
	if err := db.pool.Release(ctx, db.conn); err != nil {
		return db.resolveError("disconnect", err)
	}
	return Result{Status: true}, nil
}

// StartTransaction, Commit, Rollback, PutSavepoint and RollbackTo are thin
// delegations: recognized database errors come back as failure results,
// anything else is rethrown.

func (db *DB) StartTransaction(ctx context.Context, opts TxOptions) (Result, error) {
	if err := db.conn.StartTransaction(ctx, opts); err != nil {
		return db.resolveError("start transaction", err)
	}
	return Result{Status: true}, nil
}

func (db *DB) Commit(ctx context.Context) (Result, error) {
	if err := db.conn.Commit(ctx); err != nil {
		return db.resolveError("commit", err)
	}
	return Result{Status: true}, nil
}

func (db *DB) Rollback(ctx context.Context) (Result, error) {
	if err := db.conn.Rollback(ctx); err != nil {
		return db.resolveError("rollback", err)
	}
	return Result{Status: true}, nil
}

func (db *DB) PutSavepoint(ctx context.Context, name string) (Result, error) {
	if err := db.conn.PutSavepoint(ctx, name); err != nil {
		return db.resolveError("savepoint", err)
	}
	return Result{Status: true}, nil
}

func (db *DB) RollbackTo(ctx context.Context, name string) (Result, error) {
	if err := db.conn.RollbackTo(ctx, name); err != nil {
		return db.resolveError("rollback to", err)
	}
	return Result{Status: true}, nil
}

// Transaction runs block inside a transaction. The transaction commits
// unless the block asks for a rollback (ErrRollbackTx) or fails:
//
//   - nil return: commit
//   - ErrRollbackTx: rollback, reported as a failure result
//   - a recognized database error: rollback, reported as a failure result
//   - anything else: rollback, then the error propagates
//
// A failing commit is itself rolled back, reporting either the generic
// rolled-back message or the rollback's own failure.
func (db *DB) Transaction(ctx context.Context, opts TxOptions, block func(tx *DB) error) (Result, error) {
	if res, err := db.StartTransaction(ctx, opts); err != nil || !res.Status {
		return res, err
	}

	err := block(db)
	if err == nil {
		if cerr := db.conn.Commit(ctx); cerr != nil {
			if rerr := db.conn.Rollback(ctx); rerr != nil {
				return db.resolveError("rollback", rerr)
			}
			if !IsDBError(cerr) {
				return Result{}, cerr
			}
			return Result{Status: false, Message: "transaction rolled back"}, nil
		}
		return Result{Status: true}, nil
	}

	if rerr := db.conn.Rollback(ctx); rerr != nil {
		return db.resolveError("rollback", rerr)
	}
	if errors.Is(err, ErrRollbackTx) {
		return Result{Status: false, Message: "transaction rolled back"}, nil
	}
	if dbe, ok := AsDBError(err); ok {
		return Result{Status: false, Message: dbe.Message}, nil
	}
	return Result{}, err
}

// ensureSchema returns the in-memory schema, introspecting the engine on
// first use. Under auto-connect the introspection round-trip opens and
// releases its own connection, the same way Table.run wraps statements;
// without it a handle could never be acquired in the one mode where the
// caller never connects explicitly.
func (db *DB) ensureSchema(ctx context.Context) (*Schema, error) {
	db.mu.Lock()
	if db.schema != nil {
		s := db.schema
		db.mu.Unlock()
		return s, nil
	}
	db.mu.Unlock()

	if db.autoConnect {
		res, err := db.Connect(ctx)
		if err != nil {
			return nil, err
		}
		if !res.Status {
			return nil, NewDBError("connect", res.Message, nil)
		}
		defer func() {
			if res, err := db.Disconnect(ctx); err != nil {
				slog.Error("alierdb: auto-disconnect failed", "database", db.conn.Database(), "err", err)
			} else if !res.Status {
				slog.Error("alierdb: auto-disconnect failed", "database", db.conn.Database(), "message", res.Message)
			}
		}()
	}

	schema, err := db.conn.GetSchema(ctx)
	if err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.schema == nil {
		db.schema = &schema
	}
	return db.schema, nil
}

// CreateDatabase creates every table the given schema describes, one at a
// time, and installs the connector-reported table schemas in memory. On a
// partial failure the in-memory schema is rolled back to the pre-operation
// tables plus exactly the tables that were actually created, so memory
// never disagrees with storage.
func (db *DB) CreateDatabase(ctx context.Context, schema Schema, ifNotExists bool) (Result, error) {
	if schema.Tables == nil {
		return Result{}, ErrInvalidSchema
	}
	for i := range schema.Tables {
		if err := schema.Tables[i].Validate(); err != nil {
			return Result{}, err
		}
	}

	prior, err := db.ensureSchema(ctx)
	if err != nil {
		return db.resolveError("create database", err)
	}

	db.mu.Lock()
	snapshot := make([]TableSchema, len(prior.Tables))
	copy(snapshot, prior.Tables)
	db.mu.Unlock()

	var created []TableSchema
	for _, ts := range schema.Tables {
		result, cerr := db.conn.CreateTable(ctx, ts, ifNotExists)
		if cerr != nil {
			db.mu.Lock()
			db.schema.Tables = mergeTables(snapshot, created)
			db.mu.Unlock()
			return db.resolveError("create table", cerr)
		}
		created = append(created, result)
		db.mu.Lock()
		db.schema.Tables = mergeTables(snapshot, created)
		db.mu.Unlock()
	}
	return Result{Status: true}, nil
}

// mergeTables installs created over prior, replacing by name: re-creating an
// existing table (IF NOT EXISTS) must not leave a stale duplicate entry for
// Schema.Table lookups to hit.
func mergeTables(prior, created []TableSchema) []TableSchema {
	names := make(map[string]bool, len(created))
	for _, ts := range created {
		names[ts.Name] = true
	}
	out := make([]TableSchema, 0, len(prior)+len(created))
	for _, ts := range prior {
		if !names[ts.Name] {
			out = append(out, ts)
		}
	}
	return append(out, created...)
}

// Get returns a table handle: a plain one when no projection is given, a
// virtual (read-only) one otherwise. Construction failures are logged and
// reported as nil, matching the original contract.
func (db *DB) Get(ctx context.Context, ref TableRef) *Table {
	if ref.Table == "" {
		slog.Error("alierdb: get requires a table name", "database", db.conn.Database())
		return nil
	}
	schema, err := db.ensureSchema(ctx)
	if err != nil {
		slog.Error("alierdb: get failed to load schema", "database", db.conn.Database(), "err", err)
		return nil
	}
	if _, ok := schema.Table(ref.Table); !ok {
		slog.Error("alierdb: get on unknown table", "database", db.conn.Database(), "table", ref.Table)
		return nil
	}
	return &Table{
		db:      db,
		name:    ref.Table,
		columns: ref.Columns,
		alias:   ref.Alias,
		virtual: len(ref.Columns) > 0,
		queue:   newPendingQueue(),
	}
}

// DropTable drops the named table and removes it from the in-memory schema.
func (db *DB) DropTable(ctx context.Context, name string) (Result, error) {
	if err := db.conn.DropTable(ctx, name); err != nil {
		return db.resolveError("drop table", err)
	}
	db.mu.Lock()
	if db.schema != nil {
		tables := db.schema.Tables[:0]
		for _, ts := range db.schema.Tables {
			if ts.Name != name {
				tables = append(tables, ts)
			}
		}
		db.schema.Tables = tables
	}
	db.mu.Unlock()
	return Result{Status: true}, nil
}

// Schema returns a copy of the current in-memory schema, introspecting on
// first use.
func (db *DB) Schema(ctx context.Context) (Schema, error) {
	s, err := db.ensureSchema(ctx)
	if err != nil {
		return Schema{}, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	out := Schema{Tables: make([]TableSchema, len(s.Tables))}
	copy(out.Tables, s.Tables)
	return out, nil
}
