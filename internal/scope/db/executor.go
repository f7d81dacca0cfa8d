package db

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dsjohal14/sqlpoll/internal/scope/query"
)

// reconnectTimeout bounds the eager reconnect after a failed execution
const reconnectTimeout = 30 * time.Second

// Batch is a fully materialised result set
type Batch struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// ColumnIndex returns the index of the named column (case-insensitive), or -1
func (b *Batch) ColumnIndex(name string) int {
	for i, col := range b.Columns {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}

// MaxInt returns the largest integer value of the named column.
// ok is false for an empty batch or a column holding only nulls.
func (b *Batch) MaxInt(column string) (highest int64, ok bool, err error) {
	idx := b.ColumnIndex(column)
	if idx < 0 {
		return 0, false, fmt.Errorf("cursor column %q not in result set %v", column, b.Columns)
	}
	for _, row := range b.Rows {
		if row[idx] == nil {
			continue
		}
		v, err := toInt64(row[idx])
		if err != nil {
			return 0, false, fmt.Errorf("cursor column %q: %w", column, err)
		}
		if !ok || v > highest {
			highest, ok = v, true
		}
	}
	return highest, ok, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d out of int64 range", n)
		}
		return int64(n), nil
	case float64:
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("value %v out of int64 range", n)
		}
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("non-integer value %v", n)
		}
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// Executor runs poll queries on the manager's current handle
type Executor struct {
	mgr         *Manager
	logger      zerolog.Logger
	onReconnect func(error)
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithReconnectHook is called with the result of every eager reconnect
func WithReconnectHook(fn func(error)) ExecutorOption {
	return func(e *Executor) {
		e.onReconnect = fn
	}
}

// WithExecutorLogger sets the executor logger
func WithExecutorLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an executor bound to mgr
func NewExecutor(mgr *Manager, opts ...ExecutorOption) *Executor {
	e := &Executor{
		mgr:    mgr,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs spec as a read statement and materialises every row.
// On failure no rows are returned, the error is an *ExecError and the manager has been
// asked to reconnect so the next cycle starts on a fresh handle.
func (e *Executor) Execute(ctx context.Context, spec query.Spec) (*Batch, error) {
	batch, err := e.run(ctx, spec)
	if err == nil {
		e.logger.Debug().Str("query", spec.SQL).Int("rows", batch.Len()).Msg("query executed")
		return batch, nil
	}

	execErr := &ExecError{Kind: Classify(err), Query: spec.SQL, Err: err}
	e.logger.Error().Err(err).Str("query", spec.SQL).Stringer("kind", execErr.Kind).Msg("query failed")

	// The context may be the reason for the failure, so the reconnect gets its own deadline.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconnectTimeout)
	defer cancel()
	rerr := e.mgr.Reconnect(rctx)
	if e.onReconnect != nil {
		e.onReconnect(rerr)
	}

	return nil, execErr
}

func (e *Executor) run(ctx context.Context, spec query.Spec) (*Batch, error) {
	conn, err := e.mgr.Current()
	if err != nil {
		return nil, err
	}

	// A fresh statement per cycle, always released.
	stmt, err := conn.PreparexContext(ctx, spec.SQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	rows, err := stmt.QueryxContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	batch := &Batch{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(batch.Rows), err)
		}
		batch.Rows = append(batch.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return batch, nil
}
