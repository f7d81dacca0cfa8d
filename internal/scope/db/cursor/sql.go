package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dsjohal14/sqlpoll/internal/scope/db"
)

// SQLStore implements Store on MySQL or SQLite through database/sql
type SQLStore struct {
	db    *sqlx.DB
	table string

	schemaSQL string
	readSQL   string
	upsertSQL string
	deleteSQL string
}

// NewSQLStore opens the cursor database for a mysql or sqlite3 target
func NewSQLStore(ctx context.Context, target db.Target, table string) (*SQLStore, error) {
	conn, err := sqlx.ConnectContext(ctx, target.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cursor store: %w", err)
	}

	store, err := NewSQLStoreFromDB(conn, table)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStoreFromDB wraps an existing handle. The dialect follows conn.DriverName().
func NewSQLStoreFromDB(conn *sqlx.DB, table string) (*SQLStore, error) {
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{
		db:        conn,
		table:     table,
		readSQL:   fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", ValueColumn, table, KeyColumn),
		deleteSQL: fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, KeyColumn),
	}

	switch conn.DriverName() {
	case db.DriverSQLite:
		s.schemaSQL = fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s TEXT NOT NULL PRIMARY KEY, %s INTEGER NOT NULL)",
			table, KeyColumn, ValueColumn)
		s.upsertSQL = fmt.Sprintf(
			"INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s",
			table, KeyColumn, ValueColumn, KeyColumn, ValueColumn, ValueColumn)
	default:
		s.schemaSQL = fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s VARCHAR(255) NOT NULL PRIMARY KEY, %s BIGINT NOT NULL)",
			table, KeyColumn, ValueColumn)
		s.upsertSQL = fmt.Sprintf(
			"INSERT INTO %s (%s, %s) VALUES (?, ?) ON DUPLICATE KEY UPDATE %s = VALUES(%s)",
			table, KeyColumn, ValueColumn, ValueColumn, ValueColumn)
	}

	return s, nil
}

// EnsureSchema creates the cursor table
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.schemaSQL); err != nil {
		return fmt.Errorf("failed to create cursor table %s: %w", s.table, err)
	}
	return nil
}

// Read returns the cursor for sourceID
func (s *SQLStore) Read(ctx context.Context, sourceID string) (int64, error) {
	var value int64
	err := s.db.GetContext(ctx, &value, s.readSQL, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}
	return value, nil
}

// Upsert inserts or updates the cursor for sourceID in one statement
func (s *SQLStore) Upsert(ctx context.Context, sourceID string, value int64) error {
	if _, err := s.db.ExecContext(ctx, s.upsertSQL, sourceID, value); err != nil {
		return fmt.Errorf("failed to upsert cursor: %w", err)
	}
	return nil
}

// Delete removes the cursor for sourceID
func (s *SQLStore) Delete(ctx context.Context, sourceID string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteSQL, sourceID); err != nil {
		return fmt.Errorf("failed to delete cursor: %w", err)
	}
	return nil
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}
