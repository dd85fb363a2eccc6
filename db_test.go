package alierdb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilConnector(t *testing.T) {
	_, err := New(nil, Options{})
	require.ErrorIs(t, err, ErrNilConnector)
}

func TestExecSQL_ErrorClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("recognized failure becomes a result", func(t *testing.T) {
		db, fc := newTestDB(t, Options{})
		fc.onExecute = func(stmt string) ([]Record, error) {
			return nil, NewDBError("execute", "no such table: nope", nil)
		}
		res, err := db.ExecSQL(ctx, `SELECT * FROM "nope";`)
		require.NoError(t, err)
		assert.False(t, res.Status)
		assert.Equal(t, "no such table: nope", res.Message)
	})

	t.Run("foreign failure propagates", func(t *testing.T) {
		db, fc := newTestDB(t, Options{})
		boom := errors.New("driver bug")
		fc.onExecute = func(stmt string) ([]Record, error) {
			return nil, boom
		}
		_, err := db.ExecSQL(ctx, `SELECT 1;`)
		require.ErrorIs(t, err, boom)
	})
}

func TestConnectDisconnect_PoolCounting(t *testing.T) {
	ctx := context.Background()
	pool := NewPool()
	db, fc := newTestDB(t, Options{Pool: pool})

	res, err := db.Connect(ctx)
	require.NoError(t, err)
	require.True(t, res.Status)
	assert.Equal(t, 1, pool.Count())

	res, err = db.Disconnect(ctx)
	require.NoError(t, err)
	require.True(t, res.Status)
	assert.Equal(t, 0, pool.Count())

	// the last release ends every registered connector
	assert.Equal(t, []string{"connect", "disconnect", "end"}, fc.callLog())

	// releasing below zero is a programming error
	_, err = db.Disconnect(ctx)
	require.ErrorIs(t, err, ErrPoolNotConnected)
}

func TestPool_SharedAcrossDatabases(t *testing.T) {
	ctx := context.Background()
	pool := NewPool()
	db1, fc1 := newTestDB(t, Options{Pool: pool})
	db2, fc2 := newTestDB(t, Options{Pool: pool})

	_, err := db1.Connect(ctx)
	require.NoError(t, err)
	_, err = db2.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Count())

	_, err = db1.Disconnect(ctx)
	require.NoError(t, err)
	// db2 is still connected, so nothing is ended yet
	assert.NotContains(t, fc1.callLog(), "end")

	_, err = db2.Disconnect(ctx)
	require.NoError(t, err)
	assert.Contains(t, fc1.callLog(), "end")
	assert.Contains(t, fc2.callLog(), "end")
}

func TestPool_TeardownErrorClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("all recognized resolves to a result", func(t *testing.T) {
		pool := NewPool()
		db, fc := newTestDB(t, Options{Pool: pool})
		fc.endErr = NewDBError("disconnect", "busy", nil)

		_, err := db.Connect(ctx)
		require.NoError(t, err)
		res, err := db.Disconnect(ctx)
		require.NoError(t, err)
		assert.False(t, res.Status)
	})

	t.Run("a foreign constituent propagates", func(t *testing.T) {
		pool := NewPool()
		db, fc := newTestDB(t, Options{Pool: pool})
		boom := errors.New("fd leak")
		fc.endErr = boom

		_, err := db.Connect(ctx)
		require.NoError(t, err)
		_, err = db.Disconnect(ctx)
		require.ErrorIs(t, err, boom)
	})
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit on nil return", func(t *testing.T) {
		db, fc := newTestDB(t, Options{})
		res, err := db.Transaction(ctx, TxOptions{}, func(tx *DB) error {
			_, err := tx.ExecSQL(ctx, `INSERT INTO "users"(name) VALUES('Alice');`)
			return err
		})
		require.NoError(t, err)
		require.True(t, res.Status)
		assert.Equal(t, []string{
			"start transaction",
			`execute:INSERT INTO "users"(name) VALUES('Alice');`,
			"commit",
		}, fc.callLog())
	})

	t.Run("requested rollback is a clean failure result", func(t *testing.T) {
		db, fc := newTestDB(t, Options{})
		res, err := db.Transaction(ctx, TxOptions{}, func(tx *DB) error {
			return ErrRollbackTx
		})
		require.NoError(t, err)
		assert.False(t, res.Status)
		assert.Equal(t, "transaction rolled back", res.Message)
		assert.Equal(t, []string{"start transaction", "rollback"}, fc.callLog())
	})

	t.Run("recognized failure rolls back into a result", func(t *testing.T) {
		db, fc := newTestDB(t, Options{})
		res, err := db.Transaction(ctx, TxOptions{}, func(tx *DB) error {
			return NewDBError("execute", "constraint failed", nil)
		})
		require.NoError(t, err)
		assert.False(t, res.Status)
		assert.Equal(t, "constraint failed", res.Message)
		assert.Equal(t, "rollback", fc.callLog()[len(fc.callLog())-1])
	})

	t.Run("foreign failure rolls back then propagates", func(t *testing.T) {
		db, fc := newTestDB(t, Options{})
		boom := errors.New("logic bug")
		_, err := db.Transaction(ctx, TxOptions{}, func(tx *DB) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, "rollback", fc.callLog()[len(fc.callLog())-1])
	})

	t.Run("commit failure rolls back", func(t *testing.T) {
		db, fc := newTestDB(t, Options{})
		fc.commitErr = NewDBError("commit", "disk full", nil)
		res, err := db.Transaction(ctx, TxOptions{}, func(tx *DB) error {
			return nil
		})
		require.NoError(t, err)
		assert.False(t, res.Status)
		assert.Equal(t, "transaction rolled back", res.Message)
		assert.Equal(t, []string{"start transaction", "commit", "rollback"}, fc.callLog())
	})
}

func TestSavepoints(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{})

	_, err := db.StartTransaction(ctx, TxOptions{})
	require.NoError(t, err)
	_, err = db.PutSavepoint(ctx, "before_import")
	require.NoError(t, err)
	_, err = db.RollbackTo(ctx, "before_import")
	require.NoError(t, err)
	_, err = db.Commit(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start transaction",
		"savepoint:before_import",
		"rollback to:before_import",
		"commit",
	}, fc.callLog())
}

func TestPreparedStatements(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{})

	ps := db.RegisterPreparedStatement("by_name", `SELECT * FROM "users" WHERE name = ?;`)
	require.NotNil(t, ps)
	assert.Equal(t, "by_name", ps.Name())
	assert.Equal(t, 1, ps.PlaceholderCount())

	// duplicate and empty registrations are refused, not failed
	assert.Nil(t, db.RegisterPreparedStatement("by_name", `SELECT 1;`))
	assert.Nil(t, db.RegisterPreparedStatement("", `SELECT 1;`))
	assert.Nil(t, db.RegisterPreparedStatement("empty", ""))

	// a '?' inside a string literal is not a placeholder
	lit := db.RegisterPreparedStatement("literal", `SELECT * FROM "users" WHERE name = 'who?';`)
	require.NotNil(t, lit)
	assert.Equal(t, 0, lit.PlaceholderCount())

	res, err := db.ExecPreparedStatement(ctx, "by_name", "Alice")
	require.NoError(t, err)
	require.True(t, res.Status)
	assert.Equal(t, []string{`SELECT * FROM "users" WHERE name = ?;`}, fc.executed())

	_, err = db.ExecPreparedStatement(ctx, "by_name", "Alice", "extra")
	require.ErrorIs(t, err, ErrTooManyParams)
	_, err = db.ExecPreparedStatement(ctx, "missing")
	require.ErrorIs(t, err, ErrUnknownStatement)

	names := func() []string {
		var out []string
		for _, p := range db.PreparedStatements() {
			out = append(out, p.Name())
		}
		return out
	}
	assert.Equal(t, []string{"by_name", "literal"}, names())

	db.RemovePreparedStatement("by_name")
	db.RemovePreparedStatement("never existed")
	assert.Equal(t, []string{"literal"}, names())
}

func TestCreateDatabase(t *testing.T) {
	ctx := context.Background()

	newTables := Schema{Tables: []TableSchema{
		{
			Name:       "tags",
			PrimaryKey: []string{"id"},
			Columns: []ColumnSchema{
				{Name: "id", Type: "INTEGER"},
				{Name: "label", Type: "TEXT"},
			},
		},
		{
			Name:       "user_tags",
			PrimaryKey: []string{"user_id", "tag_id"},
			Columns: []ColumnSchema{
				{Name: "user_id", Type: "INTEGER"},
				{Name: "tag_id", Type: "INTEGER"},
			},
		},
	}}

	t.Run("creates every table and extends the schema", func(t *testing.T) {
		db, fc := newTestDB(t, Options{})
		res, err := db.CreateDatabase(ctx, newTables, false)
		require.NoError(t, err)
		require.True(t, res.Status)
		assert.Equal(t, []string{"create table:tags", "create table:user_tags"}, fc.callLog())

		s, err := db.Schema(ctx)
		require.NoError(t, err)
		_, ok := s.Table("tags")
		assert.True(t, ok)
		_, ok = s.Table("user_tags")
		assert.True(t, ok)
	})

	t.Run("partial failure keeps memory honest", func(t *testing.T) {
		db, fc := newTestDB(t, Options{})
		fc.onCreateTable = func(ts TableSchema) (TableSchema, error) {
			if ts.Name == "user_tags" {
				return TableSchema{}, NewDBError("create table", "table user_tags already exists", nil)
			}
			return ts, nil
		}
		res, err := db.CreateDatabase(ctx, newTables, false)
		require.NoError(t, err)
		assert.False(t, res.Status)

		// tags made it into storage, so it stays; user_tags never existed
		s, err := db.Schema(ctx)
		require.NoError(t, err)
		_, ok := s.Table("tags")
		assert.True(t, ok)
		_, ok = s.Table("user_tags")
		assert.False(t, ok)
		_, ok = s.Table("users")
		assert.True(t, ok)
	})

	t.Run("re-creating an existing table replaces its entry", func(t *testing.T) {
		db, _ := newTestDB(t, Options{})
		redefined := Schema{Tables: []TableSchema{
			{
				Name:       "users",
				PrimaryKey: []string{"id"},
				Columns: []ColumnSchema{
					{Name: "id", Type: "INTEGER"},
					{Name: "name", Type: "TEXT", Nullable: true},
					{Name: "email", Type: "TEXT", Nullable: true},
				},
			},
		}}

		res, err := db.CreateDatabase(ctx, redefined, true)
		require.NoError(t, err)
		require.True(t, res.Status)

		s, err := db.Schema(ctx)
		require.NoError(t, err)
		var matches []TableSchema
		for _, ts := range s.Tables {
			if ts.Name == "users" {
				matches = append(matches, ts)
			}
		}
		require.Len(t, matches, 1)
		_, ok := matches[0].Column("email")
		assert.True(t, ok, "lookup must see the re-created table, not a stale entry")
	})

	t.Run("invalid schema is a programming error", func(t *testing.T) {
		db, _ := newTestDB(t, Options{})
		_, err := db.CreateDatabase(ctx, Schema{}, false)
		require.ErrorIs(t, err, ErrInvalidSchema)

		bad := Schema{Tables: []TableSchema{{
			Name:       "broken",
			PrimaryKey: []string{"ghost"},
			Columns:    []ColumnSchema{{Name: "id", Type: "INTEGER"}},
		}}}
		_, err = db.CreateDatabase(ctx, bad, false)
		require.ErrorIs(t, err, ErrPrimaryKeyColumn)
	})
}

func TestDBGet_AutoConnectCoversIntrospection(t *testing.T) {
	ctx := context.Background()

	// the engine refuses introspection until a connection is open, like a
	// real driver does
	fc := newFakeConnector("testdb")
	fc.onGetSchema = func() (Schema, error) {
		if !fc.isConnected() {
			return Schema{}, NewDBError("get schema", "not connected", nil)
		}
		return *usersSchema(), nil
	}

	db, err := New(fc, Options{AutoConnect: true, Pool: NewPool()})
	require.NoError(t, err)

	users := db.Get(ctx, TableRef{Table: "users"})
	require.NotNil(t, users)
	assert.Equal(t, []string{"connect", "get schema", "disconnect", "end"}, fc.callLog())

	// the acquired handle is usable end to end
	res, err := users.Post(ctx, PostDescriptor{Values: Set("name", "Alice")})
	require.NoError(t, err)
	assert.True(t, res.Status)
}

func TestDBGet_UnknownTable(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t, Options{})
	assert.Nil(t, db.Get(ctx, TableRef{Table: "nope"}))
	assert.Nil(t, db.Get(ctx, TableRef{}))
}

func TestDropTable_RemovesFromSchema(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{})

	res, err := db.DropTable(ctx, "orders")
	require.NoError(t, err)
	require.True(t, res.Status)
	assert.Equal(t, []string{"drop table:orders"}, fc.callLog())

	s, err := db.Schema(ctx)
	require.NoError(t, err)
	_, ok := s.Table("orders")
	assert.False(t, ok)
	assert.Nil(t, db.Get(ctx, TableRef{Table: "orders"}))
}

func TestSchema_ReturnsACopy(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t, Options{})

	s, err := db.Schema(ctx)
	require.NoError(t, err)
	s.Tables[0].Name = "mutated"

	again, err := db.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, "users", again.Tables[0].Name)
}
