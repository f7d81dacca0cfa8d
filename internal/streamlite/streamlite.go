// Package streamlite provides incremental polling connectors that stream new rows from SQL sources.
package streamlite

import (
	"context"
	"sync"
	"time"
)

// Connector represents a polled data source
type Connector interface {
	Name() string
	Open(ctx context.Context) error
	RunCycle(ctx context.Context) (Report, error)
	Status() Status
	Close() error
}

// Phase is the lifecycle position of a connector
type Phase int

// Connector phases
const (
	PhaseIdle Phase = iota
	PhaseBuilding
	PhaseExecuting
	PhaseSerializing
	PhaseEmitting
	PhasePersisting
	PhaseErrorRecovery
	PhaseShutdown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBuilding:
		return "building"
	case PhaseExecuting:
		return "executing"
	case PhaseSerializing:
		return "serializing"
	case PhaseEmitting:
		return "emitting"
	case PhasePersisting:
		return "persisting"
	case PhaseErrorRecovery:
		return "error_recovery"
	case PhaseShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// BaseConnector provides the name, start time and phase bookkeeping shared by connectors
type BaseConnector struct {
	name string

	mu        sync.RWMutex
	startedAt time.Time
	phase     Phase
}

// NewBaseConnector creates a new base connector
func NewBaseConnector(name string) *BaseConnector {
	return &BaseConnector{
		name: name,
	}
}

// Name returns the connector name
func (c *BaseConnector) Name() string {
	return c.name
}

// Start marks the connector as started
func (c *BaseConnector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedAt = time.Now()
	c.phase = PhaseIdle
}

// StartedAt returns when the connector was started, zero if never
func (c *BaseConnector) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startedAt
}

// Phase returns the current phase
func (c *BaseConnector) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// SetPhase moves the connector to p. Shutdown is terminal.
func (c *BaseConnector) SetPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseShutdown {
		return
	}
	c.phase = p
}

// Stop moves the connector to Shutdown
func (c *BaseConnector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseShutdown
}
