package db

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsjohal14/sqlpoll/internal/scope/query"
)

// newSQLiteSource creates a file-backed sqlite database with a small student table
func newSQLiteSource(t *testing.T, rows int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "source.db")
	seed, err := sqlx.Open(DriverSQLite, path)
	require.NoError(t, err)
	defer func() { _ = seed.Close() }()

	seed.MustExec(`CREATE TABLE student (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)`)
	for i := 1; i <= rows; i++ {
		seed.MustExec(`INSERT INTO student (id, name, age) VALUES (?, ?, ?)`, i, "s", 20+i)
	}
	return "sqlite3://" + path
}

func TestNewManagerInvalidURL(t *testing.T) {
	_, err := NewManager("invalid://connection", "", "")
	if err == nil {
		t.Error("expected error with invalid connection string, got nil")
	}
}

func TestManagerCurrentBeforeConnect(t *testing.T) {
	mgr, err := NewManager("sqlite3://"+filepath.Join(t.TempDir(), "x.db"), "", "")
	require.NoError(t, err)

	_, err = mgr.Current()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestManagerConnectReconnectClose(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(newSQLiteSource(t, 1), "", "")
	require.NoError(t, err)

	require.NoError(t, mgr.Connect(ctx))
	first, err := mgr.Current()
	require.NoError(t, err)

	require.NoError(t, mgr.Reconnect(ctx))
	second, err := mgr.Current()
	require.NoError(t, err)
	assert.NotSame(t, first, second, "reconnect must replace the handle")

	require.NoError(t, mgr.Close())
	_, err = mgr.Current()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestExecutorExecute(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(newSQLiteSource(t, 3), "", "")
	require.NoError(t, err)
	require.NoError(t, mgr.Connect(ctx))
	defer func() { _ = mgr.Close() }()

	exec := NewExecutor(mgr)
	batch, err := exec.Execute(ctx, query.Spec{SQL: "SELECT id, name FROM student where id>1", Cursor: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, batch.Columns)
	require.Equal(t, 2, batch.Len())
	assert.EqualValues(t, 2, batch.Rows[0][0])
	assert.EqualValues(t, 3, batch.Rows[1][0])

	highest, ok, err := batch.MaxInt("ID")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 3, highest)
}

func TestExecutorEmptyResult(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(newSQLiteSource(t, 2), "", "")
	require.NoError(t, err)
	require.NoError(t, mgr.Connect(ctx))
	defer func() { _ = mgr.Close() }()

	batch, err := NewExecutor(mgr).Execute(ctx, query.Spec{SQL: "SELECT * FROM student where id>2", Cursor: 2})
	require.NoError(t, err)
	assert.NotNil(t, batch)
	assert.Equal(t, 0, batch.Len())

	_, ok, err := batch.MaxInt("id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecutorStatementErrorReconnects(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(newSQLiteSource(t, 1), "", "")
	require.NoError(t, err)
	require.NoError(t, mgr.Connect(ctx))
	defer func() { _ = mgr.Close() }()

	var reconnects []error
	exec := NewExecutor(mgr, WithReconnectHook(func(err error) { reconnects = append(reconnects, err) }))

	batch, err := exec.Execute(ctx, query.Spec{SQL: "SELECT * FROM missing where id>0"})
	assert.Nil(t, batch)

	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, KindStatement, execErr.Kind)
	require.Len(t, reconnects, 1)
	assert.NoError(t, reconnects[0])

	// The fresh handle serves the next cycle.
	batch, err = exec.Execute(ctx, query.Spec{SQL: "SELECT * FROM student where id>0"})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())
}

func TestExecutorConnectionLost(t *testing.T) {
	ctx := context.Background()

	broken, brokenMock, err := sqlmock.New()
	require.NoError(t, err)
	brokenMock.ExpectPrepare(regexp.QuoteMeta("SELECT * FROM student where id>0")).
		WillReturnError(mysql.ErrInvalidConn)

	healthy, healthyMock, err := sqlmock.New()
	require.NoError(t, err)
	healthyMock.ExpectPrepare(regexp.QuoteMeta("SELECT * FROM student where id>0")).
		ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "a"))

	handles := []*sqlx.DB{sqlx.NewDb(broken, "sqlmock"), sqlx.NewDb(healthy, "sqlmock")}
	opened := 0
	opener := func(context.Context, Target) (*sqlx.DB, error) {
		db := handles[opened]
		opened++
		return db, nil
	}

	mgr, err := NewManager("jdbc:mysql://localhost:3306/school", "root", "pw", WithOpener(opener))
	require.NoError(t, err)
	require.NoError(t, mgr.Connect(ctx))

	exec := NewExecutor(mgr)
	spec := query.Spec{SQL: "SELECT * FROM student where id>0"}

	_, err = exec.Execute(ctx, spec)
	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, KindConnectionLost, execErr.Kind)
	assert.ErrorIs(t, err, mysql.ErrInvalidConn)
	assert.Equal(t, 2, opened, "failure must trigger exactly one reconnect")

	batch, err := exec.Execute(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())
	assert.NoError(t, healthyMock.ExpectationsWereMet())
}

func TestExecutorReconnectFailure(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")

	first, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectPrepare("SELECT").WillReturnError(mysql.ErrInvalidConn)

	calls := 0
	opener := func(context.Context, Target) (*sqlx.DB, error) {
		calls++
		if calls == 1 {
			return sqlx.NewDb(first, "sqlmock"), nil
		}
		return nil, down
	}

	mgr, err := NewManager("mysql://localhost/school", "root", "pw", WithOpener(opener))
	require.NoError(t, err)
	require.NoError(t, mgr.Connect(ctx))

	var hookErr error
	exec := NewExecutor(mgr, WithReconnectHook(func(err error) { hookErr = err }))
	_, err = exec.Execute(ctx, query.Spec{SQL: "SELECT 1"})
	require.Error(t, err)
	assert.ErrorIs(t, hookErr, down)

	// Without a live handle the next cycle fails as a lost connection, then retries the reconnect.
	_, err = exec.Execute(ctx, query.Spec{SQL: "SELECT 1"})
	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, KindConnectionLost, execErr.Kind)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 3, calls)
}

func TestBatchMaxIntErrors(t *testing.T) {
	b := &Batch{Columns: []string{"id", "name"}, Rows: [][]any{{int64(1), "a"}, {nil, "b"}, {[]byte("7"), "c"}}}

	highest, ok, err := b.MaxInt("id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 7, highest)

	_, _, err = b.MaxInt("missing")
	assert.Error(t, err)

	_, _, err = b.MaxInt("name")
	assert.Error(t, err)

	var nilBatch *Batch
	assert.Equal(t, 0, nilBatch.Len())
}

func TestBatchMaxIntRange(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int64
		wantErr bool
	}{
		{"uint64 in range", uint64(math.MaxInt64), math.MaxInt64, false},
		{"uint64 overflow", uint64(math.MaxInt64) + 1, 0, true},
		{"uint32", uint32(math.MaxUint32), math.MaxUint32, false},
		{"integral float", float64(42), 42, false},
		{"fractional float", 4.5, 0, true},
		{"float overflow", 1e19, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Batch{Columns: []string{"id"}, Rows: [][]any{{tt.value}}}
			highest, _, err := b.MaxInt("id")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, highest)
		})
	}
}
