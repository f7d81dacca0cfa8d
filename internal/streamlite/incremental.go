package streamlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dsjohal14/sqlpoll/internal/libs/accel"
	"github.com/dsjohal14/sqlpoll/internal/libs/config"
	"github.com/dsjohal14/sqlpoll/internal/libs/obs"
	"github.com/dsjohal14/sqlpoll/internal/scope/db"
	"github.com/dsjohal14/sqlpoll/internal/scope/db/cursor"
	"github.com/dsjohal14/sqlpoll/internal/scope/query"
	"github.com/dsjohal14/sqlpoll/internal/scope/rowfmt"
	"github.com/dsjohal14/sqlpoll/internal/sink"
)

// Report describes one finished cycle
type Report struct {
	CycleID    string
	SourceID   string
	Query      string
	Cursor     int64 // boundary the query was bound to
	NextCursor int64 // cursor after the cycle; equal to Cursor on failure
	Rows       int
	Outcome    string
	Err        error
	StartedAt  time.Time
	Duration   time.Duration
}

// Counters are cumulative cycle outcomes
type Counters struct {
	Success uint64
	Empty   uint64
	Failed  uint64
}

// Status is a point-in-time snapshot of a connector
type Status struct {
	SourceID  string
	Phase     Phase
	Cursor    int64
	Open      bool
	StartedAt time.Time
	Last      *Report
	Counters  Counters
}

// Incremental polls one source for rows beyond its cursor, emits them and persists the
// advanced cursor. At most one cycle runs at a time.
type Incremental struct {
	*BaseConnector

	src     config.Source
	builder *query.Builder
	mgr     *db.Manager
	exec    *db.Executor
	ser     *rowfmt.Serializer
	sink    sink.Sink
	store   cursor.Store
	batch   *accel.Batch
	metrics *obs.Metrics
	logger  zerolog.Logger

	opener db.Opener

	cycle sync.Mutex // held for the duration of a cycle

	mu       sync.RWMutex
	cursor   int64
	open     bool
	closed   bool
	last     *Report
	counters Counters
}

// Option configures an Incremental
type Option func(*Incremental)

// WithMetrics records cycle metrics
func WithMetrics(m *obs.Metrics) Option {
	return func(c *Incremental) {
		c.metrics = m
	}
}

// WithLogger sets the connector logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Incremental) {
		c.logger = logger
	}
}

// WithOpener replaces how the source database is opened
func WithOpener(open db.Opener) Option {
	return func(c *Incremental) {
		c.opener = open
	}
}

// NewIncremental creates a connector for src. It does not connect.
func NewIncremental(src config.Source, store cursor.Store, out sink.Sink, opts ...Option) (*Incremental, error) {
	c := &Incremental{
		BaseConnector: NewBaseConnector(src.ID),
		src:           src,
		builder:       query.NewBuilder(query.FromConfig(src)),
		sink:          out,
		store:         store,
		batch:         accel.NewBatch(src.BatchSize),
		logger:        obs.Logger("incremental"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("source", src.ID).Logger()

	ser, err := rowfmt.New(src.Delimiter, src.Charset)
	if err != nil {
		return nil, err
	}
	c.ser = ser

	mopts := []db.ManagerOption{db.WithLogger(c.logger)}
	if c.opener != nil {
		mopts = append(mopts, db.WithOpener(c.opener))
	}
	mgr, err := db.NewManager(src.ConnectionURL, src.ConnectionUser, src.ConnectionPassword, mopts...)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	c.mgr = mgr
	c.exec = db.NewExecutor(mgr,
		db.WithExecutorLogger(c.logger),
		db.WithReconnectHook(func(err error) { c.metrics.ObserveReconnect(src.ID, err) }),
	)

	return c, nil
}

// Source returns the connector configuration
func (c *Incremental) Source() config.Source {
	return c.src
}

// Open seeds the cursor from the store, falling back to start.from, and connects to the source.
// A failed connection is retried by the next cycle; only a cursor store failure is returned.
func (c *Incremental) Open(ctx context.Context) error {
	c.cycle.Lock()
	defer c.cycle.Unlock()

	c.mu.RLock()
	closed, open := c.closed, c.open
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if open {
		return nil
	}

	seed, err := c.store.Read(ctx, c.src.ID)
	switch {
	case errors.Is(err, cursor.ErrNotFound):
		seed = c.src.StartFrom
	case err != nil:
		return fmt.Errorf("failed to read cursor for %s: %w", c.src.ID, err)
	}

	// An unreachable source is not fatal: the first cycle finds no handle, fails as a
	// connection error and reconnects.
	connected := true
	if err := c.mgr.Connect(ctx); err != nil {
		connected = false
		c.logger.Warn().Err(err).Msg("source unreachable, will reconnect on the next cycle")
	}

	c.mu.Lock()
	c.cursor = seed
	c.open = true
	c.mu.Unlock()

	c.Start()
	c.metrics.SetCursor(c.src.ID, seed)
	c.logger.Info().
		Int64("cursor", seed).
		Str("driver", c.mgr.Target().Driver).
		Bool("connected", connected).
		Msg("connector opened")
	return nil
}

// Cursor returns the in-memory cursor
func (c *Incremental) Cursor() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor
}

// RunCycle performs one full pass: build, execute, serialize, emit, persist.
// Failures return a *CycleError and leave the cursor unchanged.
func (c *Incremental) RunCycle(ctx context.Context) (Report, error) {
	if !c.cycle.TryLock() {
		return Report{}, ErrCycleInProgress
	}
	defer c.cycle.Unlock()

	c.mu.RLock()
	closed, open, current := c.closed, c.open, c.cursor
	c.mu.RUnlock()
	if closed {
		return Report{}, ErrClosed
	}
	if !open {
		return Report{}, ErrNotOpen
	}

	report := Report{
		CycleID:    uuid.NewString(),
		SourceID:   c.src.ID,
		Cursor:     current,
		NextCursor: current,
		StartedAt:  time.Now(),
	}

	c.SetPhase(PhaseBuilding)
	spec, err := c.builder.Build(current)
	if err != nil {
		return c.fail(report, KindStatement, err)
	}
	report.Query = spec.SQL

	c.SetPhase(PhaseExecuting)
	batch, err := c.exec.Execute(ctx, spec)
	if err != nil {
		return c.fail(report, kindOf(err), err)
	}
	report.Rows = batch.Len()

	next, err := c.advance(current, batch)
	if err != nil {
		return c.fail(report, KindStatement, err)
	}

	c.SetPhase(PhaseSerializing)
	lines, err := c.ser.Serialize(batch.Rows)
	if err != nil {
		return c.fail(report, KindSerialization, err)
	}

	c.SetPhase(PhaseEmitting)
	if err := c.emit(ctx, report, lines); err != nil {
		return c.fail(report, KindSink, err)
	}

	c.SetPhase(PhasePersisting)
	if err := c.store.Upsert(ctx, c.src.ID, next); err != nil {
		return c.fail(report, KindPersist, err)
	}

	report.NextCursor = next
	report.Outcome = obs.OutcomeSuccess
	if report.Rows == 0 {
		report.Outcome = obs.OutcomeEmpty
	}
	report.Duration = time.Since(report.StartedAt)

	c.mu.Lock()
	c.cursor = next
	c.last = &report
	if report.Rows == 0 {
		c.counters.Empty++
	} else {
		c.counters.Success++
	}
	c.mu.Unlock()

	c.SetPhase(PhaseIdle)
	c.metrics.ObserveCycle(c.src.ID, report.Outcome, "", report.Rows, report.Duration)
	c.metrics.SetCursor(c.src.ID, next)

	c.logger.Debug().
		Str("cycle", report.CycleID).
		Int("rows", report.Rows).
		Int64("cursor", next).
		Dur("elapsed", report.Duration).
		Msg("cycle completed")
	return report, nil
}

// emit delivers lines in batch.size chunks. An empty result still reaches the sink once.
func (c *Incremental) emit(ctx context.Context, report Report, lines []string) error {
	ctx = sink.WithMeta(ctx, sink.Meta{SourceID: c.src.ID, CycleID: report.CycleID, Cursor: report.Cursor})
	if len(lines) == 0 {
		return c.sink.Emit(ctx, lines)
	}
	return c.batch.Each(lines, func(chunk []string) error {
		return c.sink.Emit(ctx, chunk)
	})
}

// advance computes the cursor after a successful batch
func (c *Incremental) advance(current int64, batch *db.Batch) (int64, error) {
	if c.src.CursorMode != config.CursorModeMax {
		return current + int64(batch.Len()), nil
	}

	highest, ok, err := batch.MaxInt(c.src.CursorColumn)
	if err != nil {
		return current, err
	}
	if !ok || highest < current {
		return current, nil
	}
	return highest, nil
}

func (c *Incremental) fail(report Report, kind FailureKind, err error) (Report, error) {
	phase := c.Phase()
	c.SetPhase(PhaseErrorRecovery)

	cerr := &CycleError{Kind: kind, Phase: phase, Query: report.Query, Rows: report.Rows, Err: err}
	report.Outcome = obs.OutcomeFailed
	report.Err = cerr
	report.Duration = time.Since(report.StartedAt)

	c.mu.Lock()
	c.last = &report
	c.counters.Failed++
	c.mu.Unlock()

	c.metrics.ObserveCycle(c.src.ID, obs.OutcomeFailed, string(kind), report.Rows, report.Duration)
	c.logger.Error().
		Err(err).
		Str("cycle", report.CycleID).
		Str("kind", string(kind)).
		Stringer("phase", phase).
		Str("query", report.Query).
		Int("rows", report.Rows).
		Int64("cursor", report.Cursor).
		Msg("cycle failed")

	c.SetPhase(PhaseIdle)
	return report, cerr
}

// Status returns a snapshot of the connector
func (c *Incremental) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		SourceID:  c.src.ID,
		Phase:     c.Phase(),
		Cursor:    c.cursor,
		Open:      c.open,
		StartedAt: c.StartedAt(),
		Counters:  c.counters,
	}
	if c.last != nil {
		last := *c.last
		st.Last = &last
	}
	return st
}

// Close waits for a running cycle, then releases the connection. Later calls return ErrClosed.
func (c *Incremental) Close() error {
	c.cycle.Lock()
	defer c.cycle.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	c.mu.Unlock()

	c.Stop()
	err := c.mgr.Close()
	c.logger.Info().Msg("connector closed")
	return err
}

var _ Connector = (*Incremental)(nil)
