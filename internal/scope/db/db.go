// Package db owns the source database connection and runs poll queries against it.
package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned when no live handle exists
var ErrNotConnected = errors.New("not connected")

// Opener opens a database for a target. Tests replace it to inject fakes.
type Opener func(ctx context.Context, target Target) (*sqlx.DB, error)

// Manager owns exactly one live connection to the source database.
// The handle is replaced wholesale on reconnect, never pooled.
type Manager struct {
	mu     sync.Mutex
	target Target
	open   Opener
	db     *sqlx.DB
	conn   *sqlx.Conn
	logger zerolog.Logger
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithOpener sets the function used to open the database
func WithOpener(open Opener) ManagerOption {
	return func(m *Manager) {
		m.open = open
	}
}

// WithLogger sets the manager logger
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager for the given credentials. It does not connect.
func NewManager(rawURL, user, password string, opts ...ManagerOption) (*Manager, error) {
	target, err := ResolveTarget(rawURL, user, password)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		target: target,
		open:   openTarget,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if len(target.Dropped) > 0 {
		m.logger.Warn().Strs("params", target.Dropped).Msg("ignoring connection url parameters the driver does not support")
	}
	return m, nil
}

// Target returns the resolved driver target
func (m *Manager) Target() Target {
	return m.target
}

// Connect opens the database and pins a single connection
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(ctx context.Context) error {
	db, err := m.open(ctx, m.target)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Connx(ctx)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to acquire connection: %w", err)
	}

	// Test connection
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m.db = db
	m.conn = conn
	m.logger.Debug().Str("driver", m.target.Driver).Msg("connected")
	return nil
}

// Current returns the live handle. It may be stale; callers report failures through Reconnect.
func (m *Manager) Current() (*sqlx.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil, ErrNotConnected
	}
	return m.conn, nil
}

// Reconnect discards the current handle and opens a new one with the last known credentials
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()
	if err := m.connectLocked(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("reconnect failed")
		return err
	}
	m.logger.Info().Msg("reconnected")
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	var errs []error
	if m.conn != nil {
		errs = append(errs, m.conn.Close())
		m.conn = nil
	}
	if m.db != nil {
		errs = append(errs, m.db.Close())
		m.db = nil
	}
	return errors.Join(errs...)
}

func openTarget(_ context.Context, target Target) (*sqlx.DB, error) {
	return sqlx.Open(target.Driver, target.DSN)
}
