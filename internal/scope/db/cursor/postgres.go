package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
	sql  postgresStatements
}

// postgresStatements holds the cursor SQL. Column names are quoted so currentIndex keeps its case.
type postgresStatements struct {
	table, schema, read, upsert, delete string
}

func newPostgresStatements(table string) postgresStatements {
	key := pgx.Identifier{KeyColumn}.Sanitize()
	value := pgx.Identifier{ValueColumn}.Sanitize()
	return postgresStatements{
		table:  table,
		schema: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s BIGINT NOT NULL)`, table, key, value),
		read:   fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, value, table, key),
		upsert: fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s`,
			table, key, value, key, value, value),
		delete: fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, key),
	}
}

// NewPostgresStore creates a pool for dsn and wraps it
func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create cursor store pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping cursor store: %w", err)
	}

	return &PostgresStore{pool: pool, sql: newPostgresStatements(table)}, nil
}

// EnsureSchema creates the cursor table
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, s.sql.schema); err != nil {
		return fmt.Errorf("failed to create cursor table %s: %w", s.sql.table, err)
	}
	return nil
}

// Read returns the cursor for sourceID
func (s *PostgresStore) Read(ctx context.Context, sourceID string) (int64, error) {
	var value int64
	err := s.pool.QueryRow(ctx, s.sql.read, sourceID).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}
	return value, nil
}

// Upsert inserts or updates the cursor for sourceID
func (s *PostgresStore) Upsert(ctx context.Context, sourceID string, value int64) error {
	if _, err := s.pool.Exec(ctx, s.sql.upsert, sourceID, value); err != nil {
		return fmt.Errorf("failed to upsert cursor: %w", err)
	}
	return nil
}

// Delete removes the cursor for sourceID
func (s *PostgresStore) Delete(ctx context.Context, sourceID string) error {
	if _, err := s.pool.Exec(ctx, s.sql.delete, sourceID); err != nil {
		return fmt.Errorf("failed to delete cursor: %w", err)
	}
	return nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
