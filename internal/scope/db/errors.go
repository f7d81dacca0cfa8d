package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Kind discriminates execution failures
type Kind int

const (
	// KindConnectionLost means the handle is unusable; the cycle is retried after reconnect
	KindConnectionLost Kind = iota + 1
	// KindStatement means the query itself was rejected; it repeats until configuration is fixed
	KindStatement
)

func (k Kind) String() string {
	switch k {
	case KindConnectionLost:
		return "connection"
	case KindStatement:
		return "statement"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ExecError is the failure result of Executor.Execute
type ExecError struct {
	Kind  Kind
	Query string
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s error executing %q: %v", e.Kind, e.Query, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Classify maps a driver error to a failure kind
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrNotConnected),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindConnectionLost
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception, 57P0x is operator shutdown.
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0") {
			return KindConnectionLost
		}
		return KindStatement
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return KindConnectionLost
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return KindStatement
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code == sqlite3.ErrCantOpen || liteErr.Code == sqlite3.ErrIoErr {
			return KindConnectionLost
		}
		return KindStatement
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectionLost
	}

	return KindStatement
}
