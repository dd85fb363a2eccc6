package alierdb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_EndToEnd(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{})
	fc.onExecute = func(stmt string) ([]Record, error) {
		if strings.HasPrefix(stmt, "SELECT") {
			return []Record{{"id": int64(1), "name": "Alice"}}, nil
		}
		return nil, nil
	}

	users := db.Get(ctx, TableRef{Table: "users"})
	require.NotNil(t, users)

	res, err := users.Post(ctx, PostDescriptor{Values: Set("name", "Alice")})
	require.NoError(t, err)
	require.True(t, res.Status)

	res, err = users.Get(ctx, GetDescriptor{Sort: []string{"id"}})
	require.NoError(t, err)
	require.True(t, res.Status)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Alice", res.Records[0]["name"])

	assert.Equal(t, []string{
		`INSERT INTO "users"(name) VALUES('Alice');`,
		`SELECT * FROM "users" ORDER BY "id";`,
	}, fc.executed())
}

func TestTable_ReadAfterWriteOrdering(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{})

	insertStarted := make(chan struct{})
	insertRelease := make(chan struct{})
	var startOnce sync.Once
	fc.onExecute = func(stmt string) ([]Record, error) {
		if strings.HasPrefix(stmt, "INSERT") {
			startOnce.Do(func() { close(insertStarted) })
			<-insertRelease
		}
		return nil, nil
	}

	users := db.Get(ctx, TableRef{Table: "users"})
	require.NotNil(t, users)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = users.Post(ctx, PostDescriptor{Values: Set("name", "Alice")})
	}()

	// the write is enqueued (and executing) before the read begins
	<-insertStarted
	time.AfterFunc(10*time.Millisecond, func() { close(insertRelease) })

	_, err := users.Get(ctx, GetDescriptor{})
	require.NoError(t, err)
	wg.Wait()

	executed := fc.executed()
	require.Len(t, executed, 2)
	assert.True(t, strings.HasPrefix(executed[0], "INSERT"), "write must complete before the read runs")
	assert.True(t, strings.HasPrefix(executed[1], "SELECT"))
}

func TestTable_JoinSharesOrderingQueue(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t, Options{})

	users := db.Get(ctx, TableRef{Table: "users"})
	orders := db.Get(ctx, TableRef{Table: "orders"})
	joined, err := users.Join(JoinDescriptor{Table: orders, Type: InnerJoin, On: "users.id == orders.user_id"})
	require.NoError(t, err)

	// same queue object, not a copy
	assert.Same(t, users.queue, joined.queue)
}

func TestTable_JoinValidation(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t, Options{})
	users := db.Get(ctx, TableRef{Table: "users"})
	orders := db.Get(ctx, TableRef{Table: "orders"})

	_, err := users.Join(JoinDescriptor{Table: nil, Type: InnerJoin, On: "a == b"})
	require.ErrorIs(t, err, ErrNoJoinOperand)

	// non-natural joins need exactly one of on/using
	_, err = users.Join(JoinDescriptor{Table: orders, Type: InnerJoin})
	require.ErrorIs(t, err, ErrJoinCondition)
	_, err = users.Join(JoinDescriptor{Table: orders, Type: InnerJoin, On: "a == b", Using: []string{"id"}})
	require.ErrorIs(t, err, ErrJoinCondition)

	// cross and natural joins take neither
	_, err = users.Join(JoinDescriptor{Table: orders, Type: CrossJoin, On: "a == b"})
	require.ErrorIs(t, err, ErrJoinNoCondition)
	_, err = users.Join(JoinDescriptor{Table: orders, Type: NaturalInnerJoin, Using: []string{"id"}})
	require.ErrorIs(t, err, ErrJoinNoCondition)

	// two joined operands cannot be combined
	j1, err := users.Join(JoinDescriptor{Table: orders, Type: InnerJoin, Using: []string{"id"}})
	require.NoError(t, err)
	j2, err := users.Join(JoinDescriptor{Table: orders, Type: CrossJoin})
	require.NoError(t, err)
	_, err = j1.Join(JoinDescriptor{Table: j2, Type: InnerJoin, Using: []string{"id"}})
	require.ErrorIs(t, err, ErrJoinedOperands)

	// operands must share the database
	other, otherConn := newTestDB(t, Options{})
	_ = otherConn
	foreign := other.Get(ctx, TableRef{Table: "users"})
	_, err = users.Join(JoinDescriptor{Table: foreign, Type: InnerJoin, Using: []string{"id"}})
	require.ErrorIs(t, err, ErrForeignConnector)
}

func TestVirtualTable_RefusesMutation(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{})

	view := db.Get(ctx, TableRef{Table: "users", Columns: []string{"name"}})
	require.NotNil(t, view)
	require.True(t, view.Virtual())

	res, err := view.Post(ctx, PostDescriptor{Values: Set("name", "x")})
	require.NoError(t, err)
	assert.False(t, res.Status)
	assert.Contains(t, res.Message, "not implemented")

	res, err = view.Delete(ctx, DeleteDescriptor{})
	require.NoError(t, err)
	assert.False(t, res.Status)
	assert.Contains(t, res.Message, "not implemented")

	// the connector was never touched
	assert.Empty(t, fc.callLog())
}

func TestTable_GetAggregateRename(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{})
	fc.onExecute = func(stmt string) ([]Record, error) {
		return []Record{{"COUNT(*)": int64(5)}}, nil
	}
	users := db.Get(ctx, TableRef{Table: "users"})

	res, err := users.Get(ctx, GetDescriptor{Aggregate: Count(AggregateOptions{})})
	require.NoError(t, err)
	require.True(t, res.Status)
	assert.Equal(t, []Record{{"count": int64(5)}}, res.Records)

	res, err = users.Get(ctx, GetDescriptor{Aggregate: Count(AggregateOptions{}), AggregateAs: "n"})
	require.NoError(t, err)
	assert.Equal(t, []Record{{"n": int64(5)}}, res.Records)
}

func TestTable_GetCallbacks(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{})
	fc.onExecute = func(stmt string) ([]Record, error) {
		return []Record{{"id": int64(1)}, {"id": int64(2)}}, nil
	}
	users := db.Get(ctx, TableRef{Table: "users"})

	var seen []int
	finalCount := -1
	res, err := users.Get(ctx, GetDescriptor{
		ForEach: func(rec Record, i int) error {
			seen = append(seen, i)
			rec["tagged"] = true
			return nil
		},
		Final: func(count int) error {
			finalCount = count
			return nil
		},
	})
	require.NoError(t, err)
	require.True(t, res.Status)
	assert.Equal(t, []int{0, 1}, seen)
	assert.Equal(t, 2, finalCount)
	assert.Equal(t, true, res.Records[0]["tagged"])
}

func TestTable_GetForEachErrorsJoin(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{})
	fc.onExecute = func(stmt string) ([]Record, error) {
		return []Record{{"id": int64(1)}, {"id": int64(2)}}, nil
	}
	users := db.Get(ctx, TableRef{Table: "users"})

	boom := errors.New("callback failed")
	_, err := users.Get(ctx, GetDescriptor{
		ForEach: func(rec Record, i int) error {
			if i == 1 {
				return boom
			}
			return nil
		},
	})
	require.ErrorIs(t, err, boom)
}

func TestTable_ExpectedFailureResolvesToResult(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{})
	fc.onExecute = func(stmt string) ([]Record, error) {
		return nil, NewDBError("execute", "UNIQUE constraint failed", nil)
	}
	users := db.Get(ctx, TableRef{Table: "users"})

	res, err := users.Post(ctx, PostDescriptor{Values: Set("name", "dup")})
	require.NoError(t, err)
	assert.False(t, res.Status)
	assert.Contains(t, res.Message, "UNIQUE constraint failed")
}

func TestTable_AutoConnectWrapsOperation(t *testing.T) {
	ctx := context.Background()
	db, fc := newTestDB(t, Options{AutoConnect: true})
	users := db.Get(ctx, TableRef{Table: "users"})

	_, err := users.Post(ctx, PostDescriptor{Values: Set("name", "Alice")})
	require.NoError(t, err)

	calls := fc.callLog()
	require.Len(t, calls, 4)
	assert.Equal(t, "connect", calls[0])
	assert.True(t, strings.HasPrefix(calls[1], "execute:INSERT"))
	assert.Equal(t, "disconnect", calls[2])
	// the last release on the pool tears the connector down
	assert.Equal(t, "end", calls[3])
}

func TestTable_AutoTransactionCommitAndRollback(t *testing.T) {
	ctx := context.Background()

	t.Run("commit on success", func(t *testing.T) {
		db, fc := newTestDB(t, Options{AutoTransaction: true})
		users := db.Get(ctx, TableRef{Table: "users"})

		res, err := users.Post(ctx, PostDescriptor{Values: Set("name", "Alice")})
		require.NoError(t, err)
		require.True(t, res.Status)

		calls := fc.callLog()
		require.Len(t, calls, 3)
		assert.Equal(t, "start transaction", calls[0])
		assert.True(t, strings.HasPrefix(calls[1], "execute:"))
		assert.Equal(t, "commit", calls[2])
	})

	t.Run("rollback on failure replaces the raw error", func(t *testing.T) {
		db, fc := newTestDB(t, Options{AutoTransaction: true})
		fc.onExecute = func(stmt string) ([]Record, error) {
			return nil, NewDBError("execute", "constraint failed", nil)
		}
		users := db.Get(ctx, TableRef{Table: "users"})

		res, err := users.Post(ctx, PostDescriptor{Values: Set("name", "Alice")})
		require.NoError(t, err)
		assert.False(t, res.Status)
		assert.Contains(t, res.Message, "rolled back")

		calls := fc.callLog()
		assert.Equal(t, "rollback", calls[len(calls)-1])
	})

	t.Run("unrecognized failure propagates after rollback", func(t *testing.T) {
		db, fc := newTestDB(t, Options{AutoTransaction: true})
		boom := errors.New("bug")
		fc.onExecute = func(stmt string) ([]Record, error) {
			return nil, boom
		}
		users := db.Get(ctx, TableRef{Table: "users"})

		_, err := users.Post(ctx, PostDescriptor{Values: Set("name", "Alice")})
		require.ErrorIs(t, err, boom)

		calls := fc.callLog()
		assert.Equal(t, "rollback", calls[len(calls)-1])
	})
}
