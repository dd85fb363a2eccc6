// Package sqlite binds the AlierDB core to SQLite through the pure-Go
// modernc.org/sqlite driver. One Connector owns one database file (or
// ":memory:") and a single dedicated session, so BEGIN/COMMIT/SAVEPOINT
// verbs observe the session they started on.
package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/alierdb/alierdb"
	"github.com/alierdb/alierdb/sqlbuild"
)

// Connector implements alierdb.Connector for SQLite.
type Connector struct {
	sqlbuild.Dialect

	path string
	name string

	mu       sync.Mutex
	db       *sql.DB
	sess     *sql.Conn
	sessions int
}

var _ alierdb.Connector = (*Connector)(nil)
var _ alierdb.Ender = (*Connector)(nil)

// New builds a connector for the database file at path (":memory:" for an
// in-memory database). Booleans render as 0/1; SQLite has no boolean
// literal.
func New(path string) *Connector {
	name := path
	if path != ":memory:" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &Connector{Dialect: sqlbuild.ANSI, path: path, name: name}
}

// Database names the bound database for diagnostics.
func (c *Connector) Database() string { return c.name }

// FixPreparedStatementQuery is the identity for SQLite; the driver already
// takes '?' placeholders.
func (c *Connector) FixPreparedStatementQuery(query string) string { return query }

// Connect opens the database (first caller) and the shared session.
func (c *Connector) Connect(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		db, err := sql.Open("sqlite", c.path)
		if err != nil {
			return false, alierdb.NewDBError("connect", err.Error(), err)
		}
		c.db = db
	}
	if c.sess == nil {
		sess, err := c.db.Conn(ctx)
		if err != nil {
			return false, alierdb.NewDBError("connect", err.Error(), err)
		}
		if err := sess.PingContext(ctx); err != nil {
			_ = sess.Close()
			return false, alierdb.NewDBError("connect", err.Error(), err)
		}
		c.sess = sess
	}
	c.sessions++
	return true, nil
}

// Disconnect drops one session reference, closing the shared session when
// the last one goes.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions == 0 {
		return alierdb.NewDBError("disconnect", "not connected", nil)
	}
	c.sessions--
	if c.sessions > 0 || c.sess == nil {
		return nil
	}
	err := c.sess.Close()
	c.sess = nil
	if err != nil {
		return alierdb.NewDBError("disconnect", err.Error(), err)
	}
	return nil
}

// End releases the underlying pool. The pool manager calls this once the
// last database on the pool disconnects.
func (c *Connector) End(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.sess = nil
	c.sessions = 0
	if err != nil {
		return alierdb.NewDBError("end", err.Error(), err)
	}
	return nil
}

// returnsRows classifies statements that produce a result set.
func returnsRows(stmt string) bool {
	s := strings.ToUpper(strings.TrimSpace(stmt))
	for _, prefix := range [...]string{"SELECT", "PRAGMA", "WITH", "VALUES", "EXPLAIN"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// Execute runs one statement on the shared session. Driver failures are
// recognized database errors.
func (c *Connector) Execute(ctx context.Context, stmt string, params ...any) ([]alierdb.Record, error) {
	sess, err := c.session()
	if err != nil {
		return nil, err
	}

	if !returnsRows(stmt) {
		if _, err := sess.ExecContext(ctx, stmt, params...); err != nil {
			return nil, alierdb.NewDBError("execute", err.Error(), err)
		}
		return nil, nil
	}

	rows, err := sess.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, alierdb.NewDBError("execute", err.Error(), err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, alierdb.NewDBError("execute", err.Error(), err)
	}
	return records, nil
}

func (c *Connector) session() (*sql.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, alierdb.NewDBError("execute", "not connected", nil)
	}
	return c.sess, nil
}

func scanRecords(rows *sql.Rows) ([]alierdb.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var records []alierdb.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(alierdb.Record, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[col] = v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

var txBehaviorSQL = map[alierdb.TxBehavior]string{
	alierdb.Deferred:  "BEGIN DEFERRED;",
	alierdb.Immediate: "BEGIN IMMEDIATE;",
	alierdb.Exclusive: "BEGIN EXCLUSIVE;",
}

// StartTransaction begins a transaction with the requested locking
// behavior. Isolation levels are not a SQLite concept and are ignored.
func (c *Connector) StartTransaction(ctx context.Context, opts alierdb.TxOptions) error {
	begin, ok := txBehaviorSQL[opts.Behavior]
	if !ok {
		begin = txBehaviorSQL[alierdb.Deferred]
	}
	return c.execVerb(ctx, "start transaction", begin)
}

func (c *Connector) Commit(ctx context.Context) error {
	return c.execVerb(ctx, "commit", "COMMIT;")
}

func (c *Connector) Rollback(ctx context.Context) error {
	return c.execVerb(ctx, "rollback", "ROLLBACK;")
}

func (c *Connector) PutSavepoint(ctx context.Context, name string) error {
	return c.execVerb(ctx, "savepoint", "SAVEPOINT "+c.AsIdentifier(name)+";")
}

func (c *Connector) RollbackTo(ctx context.Context, name string) error {
	return c.execVerb(ctx, "rollback to", "ROLLBACK TO "+c.AsIdentifier(name)+";")
}

func (c *Connector) execVerb(ctx context.Context, op, stmt string) error {
	sess, err := c.session()
	if err != nil {
		return err
	}
	if _, err := sess.ExecContext(ctx, stmt); err != nil {
		return alierdb.NewDBError(op, err.Error(), err)
	}
	return nil
}
