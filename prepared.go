package alierdb

import (
	"context"

	"github.com/alierdb/alierdb/sqlbuild"
)

// PreparedStatement is an immutable named statement: the fixed-up text, the
// number of '?' placeholders counted outside quoted regions, and the
// owning database. Instances only come out of RegisterPreparedStatement.
type PreparedStatement struct {
	name         string
	text         string
	placeholders int
	db           *DB
}

func (p *PreparedStatement) Name() string          { return p.name }
func (p *PreparedStatement) Text() string          { return p.text }
func (p *PreparedStatement) PlaceholderCount() int { return p.placeholders }

// RegisterPreparedStatement names a statement for later execution. The
// placeholder count is taken from the raw text (quote-aware), then the text
// is run through the connector's placeholder fix-up. Registering a
// duplicate name is refused with a nil return, not an error.
func (db *DB) RegisterPreparedStatement(name, statement string) *PreparedStatement {
	if name == "" || statement == "" {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, dup := db.prepared[name]; dup {
		return nil
	}
	ps := &PreparedStatement{
		name:         name,
		text:         db.conn.FixPreparedStatementQuery(statement),
		placeholders: sqlbuild.CountPlaceholders(statement),
		db:           db,
	}
	db.prepared[name] = ps
	db.order = append(db.order, name)
	return ps
}

// ExecPreparedStatement executes a registered statement. Supplying more
// parameters than the statement has placeholders is a programming error.
func (db *DB) ExecPreparedStatement(ctx context.Context, name string, params ...any) (Result, error) {
	db.mu.Lock()
	ps, ok := db.prepared[name]
	db.mu.Unlock()
	if !ok {
		return Result{}, ErrUnknownStatement
	}
	if ps.db != db {
		return Result{}, ErrForeignStatement
	}
	if len(params) > ps.placeholders {
		return Result{}, ErrTooManyParams
	}
	return db.ExecSQL(ctx, ps.text, params...)
}

// RemovePreparedStatement forgets a registered statement; removing an
// unknown name is a no-op.
func (db *DB) RemovePreparedStatement(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.prepared[name]; !ok {
		return
	}
	delete(db.prepared, name)
	for i, n := range db.order {
		if n == name {
			db.order = append(db.order[:i], db.order[i+1:]...)
			break
		}
	}
}

// PreparedStatements lists the registered statements in registration order.
func (db *DB) PreparedStatements() []*PreparedStatement {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*PreparedStatement, 0, len(db.order))
	for _, name := range db.order {
		out = append(out, db.prepared[name])
	}
	return out
}
