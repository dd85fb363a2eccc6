package alierdb

import (
	"context"
	"strings"
	"sync"

	"github.com/alierdb/alierdb/sqlbuild"
)

// fakeConnector records every call in order and serves canned data, which
// is all the core needs for behavior tests: no statement is ever parsed
// here.
type fakeConnector struct {
	sqlbuild.Dialect
	name string

	mu    sync.Mutex
	calls []string

	// onExecute, when set, intercepts Execute after the call is recorded.
	onExecute func(stmt string) ([]Record, error)
	// onCreateTable, when set, intercepts CreateTable.
	onCreateTable func(ts TableSchema) (TableSchema, error)
	// onGetSchema, when set, intercepts GetSchema.
	onGetSchema func() (Schema, error)

	commitErr error
	endErr    error
	schema    Schema
	connected int
}

func newFakeConnector(name string) *fakeConnector {
	return &fakeConnector{Dialect: sqlbuild.ANSI, name: name}
}

func (f *fakeConnector) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeConnector) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeConnector) executed() []string {
	var out []string
	for _, call := range f.callLog() {
		if s, ok := strings.CutPrefix(call, "execute:"); ok {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeConnector) Database() string { return f.name }

func (f *fakeConnector) FixPreparedStatementQuery(q string) string { return q }

func (f *fakeConnector) Connect(ctx context.Context) (bool, error) {
	f.record("connect")
	f.mu.Lock()
	f.connected++
	f.mu.Unlock()
	return true, nil
}

func (f *fakeConnector) Disconnect(ctx context.Context) error {
	f.record("disconnect")
	f.mu.Lock()
	if f.connected > 0 {
		f.connected--
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeConnector) isConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected > 0
}

func (f *fakeConnector) End(ctx context.Context) error {
	f.record("end")
	return f.endErr
}

func (f *fakeConnector) Execute(ctx context.Context, stmt string, params ...any) ([]Record, error) {
	f.record("execute:" + stmt)
	if f.onExecute != nil {
		return f.onExecute(stmt)
	}
	return nil, nil
}

func (f *fakeConnector) StartTransaction(ctx context.Context, opts TxOptions) error {
	f.record("start transaction")
	return nil
}

func (f *fakeConnector) Commit(ctx context.Context) error {
	f.record("commit")
	return f.commitErr
}

func (f *fakeConnector) Rollback(ctx context.Context) error {
	f.record("rollback")
	return nil
}

func (f *fakeConnector) PutSavepoint(ctx context.Context, name string) error {
	f.record("savepoint:" + name)
	return nil
}

func (f *fakeConnector) RollbackTo(ctx context.Context, name string) error {
	f.record("rollback to:" + name)
	return nil
}

func (f *fakeConnector) CreateTable(ctx context.Context, ts TableSchema, ifNotExists bool) (TableSchema, error) {
	f.record("create table:" + ts.Name)
	if f.onCreateTable != nil {
		return f.onCreateTable(ts)
	}
	return ts, nil
}

func (f *fakeConnector) DropTable(ctx context.Context, name string) error {
	f.record("drop table:" + name)
	return nil
}

func (f *fakeConnector) GetSchema(ctx context.Context) (Schema, error) {
	f.record("get schema")
	if f.onGetSchema != nil {
		return f.onGetSchema()
	}
	return f.schema, nil
}

// usersSchema is the fixture most tests run against.
func usersSchema() *Schema {
	return &Schema{Tables: []TableSchema{
		{
			Name:       "users",
			PrimaryKey: []string{"id"},
			Columns: []ColumnSchema{
				{Name: "id", Type: "INTEGER"},
				{Name: "name", Type: "TEXT", Nullable: true},
			},
		},
		{
			Name:       "orders",
			PrimaryKey: []string{"id"},
			Columns: []ColumnSchema{
				{Name: "id", Type: "INTEGER"},
				{Name: "user_id", Type: "INTEGER"},
				{Name: "total", Type: "REAL", Nullable: true},
			},
		},
	}}
}

func newTestDB(t interface{ Fatalf(string, ...any) }, opts Options) (*DB, *fakeConnector) {
	fc := newFakeConnector("testdb")
	if opts.Pool == nil {
		opts.Pool = NewPool()
	}
	if opts.Schema == nil {
		opts.Schema = usersSchema()
	}
	db, err := New(fc, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return db, fc
}

func floatp(v float64) *float64 { return &v }
