// Package postgres binds the AlierDB core to PostgreSQL through lib/pq.
// Schema introspection goes through information_schema and the pg_catalog,
// and '?' placeholders are rewritten into the $1..$n form the server
// expects.
package postgres

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	_ "github.com/lib/pq"

	"github.com/alierdb/alierdb"
	"github.com/alierdb/alierdb/sqlbuild"
)

// Connector implements alierdb.Connector for PostgreSQL.
type Connector struct {
	sqlbuild.Dialect

	dsn    string
	name   string
	schema string // namespace to introspect, default "public"

	mu       sync.Mutex
	db       *sql.DB
	sess     *sql.Conn
	sessions int
}

var _ alierdb.Connector = (*Connector)(nil)
var _ alierdb.Ender = (*Connector)(nil)

// New builds a connector for a connection string. name is the database name
// used in diagnostics (Postgres cannot be asked before connecting).
func New(dsn, name string) *Connector {
	d := sqlbuild.ANSI
	d.BoolLiteral = func(b bool) string {
		if b {
			return "TRUE"
		}
		return "FALSE"
	}
	return &Connector{Dialect: d, dsn: dsn, name: name, schema: "public"}
}

// WithSchema switches introspection to another namespace.
func (c *Connector) WithSchema(schema string) *Connector {
	c.schema = schema
	return c
}

func (c *Connector) Database() string { return c.name }

// FixPreparedStatementQuery rewrites every unquoted '?' into $1..$n.
func (c *Connector) FixPreparedStatementQuery(query string) string {
	return FixPlaceholders(query)
}

func (c *Connector) Connect(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		db, err := sql.Open("postgres", c.dsn)
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

func returnsRows(stmt string) bool {
	s := strings.ToUpper(strings.TrimSpace(stmt))
	for _, prefix := range [...]string{"SELECT", "WITH", "VALUES", "SHOW", "EXPLAIN", "TABLE "} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// Execute runs one statement on the shared session. When parameters are
// supplied the placeholder rewrite is applied first, so callers can keep
// writing portable '?' text.
func (c *Connector) Execute(ctx context.Context, stmt string, params ...any) ([]alierdb.Record, error) {
	sess, err := c.session()
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		stmt = FixPlaceholders(stmt)
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

var txIsolationSQL = map[alierdb.TxIsolation]string{
	alierdb.DefaultIsolation: "",
	alierdb.ReadCommitted:    " ISOLATION LEVEL READ COMMITTED",
	alierdb.RepeatableRead:   " ISOLATION LEVEL REPEATABLE READ",
	alierdb.Serializable:     " ISOLATION LEVEL SERIALIZABLE",
}

// StartTransaction begins a transaction at the requested isolation level.
// SQLite-style locking behaviors have no Postgres equivalent and are
// ignored.
func (c *Connector) StartTransaction(ctx context.Context, opts alierdb.TxOptions) error {
	return c.execVerb(ctx, "start transaction", "BEGIN"+txIsolationSQL[opts.Isolation]+";")
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
	return c.execVerb(ctx, "rollback to", "ROLLBACK TO SAVEPOINT "+c.AsIdentifier(name)+";")
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
