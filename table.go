package alierdb

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alierdb/alierdb/sqlbuild"
)

// pendingQueue is the per-table read/write ordering lock: each mutation
// enqueues a completion marker before it runs, and a read drains (then
// clears) every marker queued before it. Joined handles share the same
// queue object, so reads on either side of a join observe writes issued
// through the other. Writes are not ordered against each other here; that
// is the storage engine's job.
type pendingQueue struct {
	mu      sync.Mutex
	pending []chan struct{}
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{}
}

// add enqueues a marker and returns its resolver. The resolver is
// idempotent.
func (q *pendingQueue) add() func() {
	ch := make(chan struct{})
	q.mu.Lock()
	q.pending = append(q.pending, ch)
	q.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

// drain waits for every marker queued so far and removes them. Markers
// enqueued while draining are left for the next reader.
func (q *pendingQueue) drain(ctx context.Context) error {
	q.mu.Lock()
	waits := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, ch := range waits {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Table is a handle on one (possibly joined or projected) relation,
// exposing REST-style Get/Put/Post/Delete plus Join. Handles come from
// DB.Get and Table.Join, never from a struct literal.
//
// A virtual handle — produced by Join, or by DB.Get with an explicit column
// list — is read-only: Post and Delete report a failure result without ever
// reaching the connector.
type Table struct {
	db      *DB
	name    string
	columns []string
	alias   string

	left     *Table
	right    *Table
	joinType JoinType
	on       string
	using    []string

	virtual bool
	queue   *pendingQueue
}

// Name returns the underlying table name ("" for a joined handle).
func (t *Table) Name() string { return t.name }

// Virtual reports whether the handle is a read-only view.
func (t *Table) Virtual() bool { return t.virtual }

// a table is joined iff both children are set
func (t *Table) joined() bool { return t.left != nil && t.right != nil }

func (t *Table) esc() sqlbuild.Escaper {
	return t.db.conn
}

// Join combines this handle with another into a virtual handle over the
// join tree. The result shares this handle's pending-write queue, so
// operations through either serialize against each other.
//
// Validation happens here, not at SELECT-build time: the operand must be a
// handle on the same database, two already-joined handles cannot be
// combined, non-natural inner/left/right/full joins take exactly one of
// On/Using, and cross or natural joins take neither.
func (t *Table) Join(d JoinDescriptor) (*Table, error) {
	if d.Table == nil {
		return nil, ErrNoJoinOperand
	}
	if d.Table.db == nil || d.Table.db.conn != t.db.conn {
		return nil, ErrForeignConnector
	}
	if t.joined() && d.Table.joined() {
		return nil, ErrJoinedOperands
	}

	hasOn := d.On != ""
	hasUsing := len(d.Using) > 0
	if d.Type == CrossJoin || d.Type.natural() {
		if hasOn || hasUsing {
			return nil, ErrJoinNoCondition
		}
	} else if hasOn == hasUsing {
		return nil, ErrJoinCondition
	}

	return &Table{
		db:       t.db,
		left:     t,
		right:    d.Table,
		joinType: d.Type,
		on:       d.On,
		using:    d.Using,
		virtual:  true,
		queue:    t.queue,
	}, nil
}

// Get drains the pending-write queue, then builds and executes a SELECT.
// On success the optional ForEach callback runs per record, aggregate
// result columns are renamed, and Final receives the record count.
func (t *Table) Get(ctx context.Context, d GetDescriptor) (Result, error) {
	if err := t.queue.drain(ctx); err != nil {
		return Result{}, err
	}

	var schema *Schema
	if t.joined() && len(t.columns) == 0 {
		s, err := t.db.ensureSchema(ctx)
		if err != nil {
			return t.db.resolveError("get", err)
		}
		schema = s
	}

	stmt, err := buildSelect(t, d, schema)
	if err != nil {
		return Result{}, err
	}

	res, err := t.run(ctx, stmt)
	if err != nil || !res.Status {
		return res, err
	}

	if d.ForEach != nil {
		var errs []error
		for i, rec := range res.Records {
			if err := d.ForEach(rec, i); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return Result{}, errors.Join(errs...)
		}
	}
	if d.Aggregate != nil {
		RenameAggregateResults(res.Records, d.Aggregate, d.AggregateAs)
	}
	if d.Final != nil {
		if err := d.Final(len(res.Records)); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

// Put builds and executes an UPDATE. The completion marker is enqueued
// before anything runs, so reads issued after this call wait for it.
func (t *Table) Put(ctx context.Context, d PutDescriptor) (Result, error) {
	done := t.queue.add()
	defer done()

	stmt, err := buildUpdate(t, d)
	if err != nil {
		return Result{}, err
	}
	return t.run(ctx, stmt)
}

// Post builds and executes an INSERT. Virtual handles refuse with a failure
// result, never an error — callers pattern-match on Status.
func (t *Table) Post(ctx context.Context, d PostDescriptor) (Result, error) {
	if t.virtual {
		return Result{Status: false, Message: "post is not implemented for virtual tables"}, nil
	}
	done := t.queue.add()
	defer done()

	stmt, err := buildInsert(t, d)
	if err != nil {
		return Result{}, err
	}
	return t.run(ctx, stmt)
}

// Delete builds and executes a DELETE. Virtual handles refuse the same way
// Post does.
func (t *Table) Delete(ctx context.Context, d DeleteDescriptor) (Result, error) {
	if t.virtual {
		return Result{Status: false, Message: "delete is not implemented for virtual tables"}, nil
	}
	done := t.queue.add()
	defer done()

	stmt, err := buildDelete(t, d)
	if err != nil {
		return Result{}, err
	}
	return t.run(ctx, stmt)
}

// run is the shared execution wrapper: auto-connect opens (and later
// closes) the connection around the whole operation, auto-transaction wraps
// the statement in a transaction that commits on success and rolls back on
// failure. The two compose orthogonally.
func (t *Table) run(ctx context.Context, stmt string) (Result, error) {
	db := t.db

	if db.autoConnect {
		res, err := db.Connect(ctx)
		if err != nil || !res.Status {
			return res, err
		}
		defer func() {
			// disconnect failures are logged, not surfaced
			if res, err := db.Disconnect(ctx); err != nil {
				slog.Error("alierdb: auto-disconnect failed", "database", db.conn.Database(), "err", err)
			} else if !res.Status {
				slog.Error("alierdb: auto-disconnect failed", "database", db.conn.Database(), "message", res.Message)
			}
		}()
	}

	if !db.autoTransaction {
		return db.ExecSQL(ctx, stmt)
	}

	if err := db.conn.StartTransaction(ctx, TxOptions{}); err != nil {
		return db.resolveError("start transaction", err)
	}

	res, err := db.ExecSQL(ctx, stmt)
	if err == nil && res.Status {
		if cerr := db.conn.Commit(ctx); cerr != nil {
			if rerr := db.conn.Rollback(ctx); rerr != nil {
				return db.resolveError("rollback", rerr)
			}
			if !IsDBError(cerr) {
				return Result{}, cerr
			}
			return Result{Status: false, Message: "transaction rolled back"}, nil
		}
		return res, nil
	}

	// statement failed; the rollback confirmation replaces the raw error
	// when the rollback itself goes through
	if rerr := db.conn.Rollback(ctx); rerr != nil {
		return db.resolveError("rollback", rerr)
	}
	if err != nil {
		// unrecognized failure propagates even after a clean rollback
		return Result{}, err
	}
	return Result{Status: false, Message: "statement failed, transaction rolled back"}, nil
}
