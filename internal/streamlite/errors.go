package streamlite

import (
	"errors"
	"fmt"

	"github.com/dsjohal14/sqlpoll/internal/scope/db"
)

var (
	// ErrCycleInProgress is returned when a cycle is requested while another is running
	ErrCycleInProgress = errors.New("cycle already in progress")

	// ErrClosed is returned by a connector after Close
	ErrClosed = errors.New("connector is closed")

	// ErrNotOpen is returned when a cycle is requested before Open
	ErrNotOpen = errors.New("connector is not open")
)

// FailureKind classifies a failed cycle
type FailureKind string

// Failure kinds
const (
	KindConnection    FailureKind = "connection"
	KindStatement     FailureKind = "statement"
	KindSerialization FailureKind = "serialization"
	KindSink          FailureKind = "sink"
	KindPersist       FailureKind = "persist"
)

// CycleError is returned by RunCycle when a cycle ends in ErrorRecovery.
// The cursor was not advanced.
type CycleError struct {
	Kind  FailureKind
	Phase Phase
	Query string
	Rows  int
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s failure during %s: %v", e.Kind, e.Phase, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// kindOf maps an executor failure to a cycle failure kind
func kindOf(err error) FailureKind {
	var execErr *db.ExecError
	if errors.As(err, &execErr) && execErr.Kind == db.KindConnectionLost {
		return KindConnection
	}
	return KindStatement
}
