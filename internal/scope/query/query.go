// Package query derives the cursor-bound SQL text for each poll cycle.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dsjohal14/sqlpoll/internal/libs/config"
)

// Placeholder is replaced by the decimal cursor value in custom queries
const Placeholder = "${cursor}"

var (
	// ErrMissingPlaceholder is returned for a custom query that already filters rows
	// but carries no cursor placeholder.
	ErrMissingPlaceholder = errors.New("custom query has a where clause but no " + Placeholder + " placeholder")

	// ErrTrailingMismatch is returned in trailing mode when the query does not end with
	// the cursor digits that are about to be overwritten.
	ErrTrailingMismatch = errors.New("custom query does not end with the previous cursor value")
)

var whereClause = regexp.MustCompile(`(?i)\bwhere\b`)

// Source is the immutable descriptor of what a connector polls
type Source struct {
	ID           string
	Table        string
	Columns      string
	CustomQuery  string
	Substitution string
	CursorColumn string
}

// FromConfig builds a descriptor from a configured source
func FromConfig(cfg config.Source) Source {
	return Source{
		ID:           cfg.ID,
		Table:        cfg.Table,
		Columns:      cfg.ColumnsToSelect,
		CustomQuery:  cfg.CustomQuery,
		Substitution: cfg.Substitution,
		CursorColumn: cfg.CursorColumn,
	}
}

// Spec is the SQL text for one cycle and the cursor it is bound to
type Spec struct {
	SQL    string
	Cursor int64
}

// Build renders the query for src at cursor. It is deterministic and does not support
// trailing substitution, which needs the previous rendering (see Builder).
func Build(src Source, cursor int64) (Spec, error) {
	column := src.CursorColumn
	if column == "" {
		column = config.DefaultCursorColumn
	}
	value := strconv.FormatInt(cursor, 10)

	if src.CustomQuery == "" {
		columns := src.Columns
		if columns == "" {
			columns = config.DefaultColumns
		}
		return Spec{SQL: fmt.Sprintf("SELECT %s FROM %s where %s>%s", columns, src.Table, column, value), Cursor: cursor}, nil
	}

	if strings.Contains(src.CustomQuery, Placeholder) {
		return Spec{SQL: strings.ReplaceAll(src.CustomQuery, Placeholder, value), Cursor: cursor}, nil
	}
	if !whereClause.MatchString(src.CustomQuery) {
		return Spec{SQL: fmt.Sprintf("%s where %s>%s", src.CustomQuery, column, value), Cursor: cursor}, nil
	}
	return Spec{}, fmt.Errorf("source %s: %w", src.ID, ErrMissingPlaceholder)
}

// Builder renders queries cycle after cycle for one source.
// In trailing mode it keeps the previous rendering and overwrites its last N characters,
// N being the decimal length of the previous cursor. The template must end with a literal
// cursor value; this is checked on every build instead of silently corrupting the SQL.
type Builder struct {
	src        Source
	last       string
	lastCursor int64
	rendered   bool
}

// NewBuilder creates a builder for src
func NewBuilder(src Source) *Builder {
	return &Builder{src: src}
}

// Source returns the descriptor the builder renders
func (b *Builder) Source() Source {
	return b.src
}

// Build renders the query for the given cursor
func (b *Builder) Build(cursor int64) (Spec, error) {
	if !b.trailing() {
		return Build(b.src, cursor)
	}

	value := strconv.FormatInt(cursor, 10)
	var prefix string
	if !b.rendered {
		trimmed := strings.TrimRight(b.src.CustomQuery, "0123456789")
		if len(trimmed) == len(b.src.CustomQuery) {
			return Spec{}, fmt.Errorf("source %s: %w", b.src.ID, ErrTrailingMismatch)
		}
		prefix = trimmed
	} else {
		previous := strconv.FormatInt(b.lastCursor, 10)
		if !strings.HasSuffix(b.last, previous) {
			return Spec{}, fmt.Errorf("source %s: %w", b.src.ID, ErrTrailingMismatch)
		}
		prefix = b.last[:len(b.last)-len(previous)]
	}

	b.last = prefix + value
	b.lastCursor = cursor
	b.rendered = true
	return Spec{SQL: b.last, Cursor: cursor}, nil
}

// trailing reports whether the legacy trailing-splice substitution applies
func (b *Builder) trailing() bool {
	q := b.src.CustomQuery
	return b.src.Substitution == config.SubstitutionTrailing &&
		q != "" &&
		!strings.Contains(q, Placeholder) &&
		whereClause.MatchString(q)
}
