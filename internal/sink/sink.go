// Package sink delivers serialized rows downstream. A nil error from Emit is the Ack.
package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dsjohal14/sqlpoll/internal/libs/config"
)

// Sink receives the lines of one cycle
type Sink interface {
	// Emit delivers lines in order. Returning an error is a Nack: the caller must not advance its cursor.
	Emit(ctx context.Context, lines []string) error
}

// EmitCloser is a Sink owning resources
type EmitCloser interface {
	Sink
	io.Closer
}

// Meta describes the cycle a batch of lines belongs to
type Meta struct {
	SourceID string
	CycleID  string
	Cursor   int64
}

type metaKey struct{}

// WithMeta attaches cycle metadata to ctx for sinks that record it
func WithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFrom returns the cycle metadata attached to ctx
func MetaFrom(ctx context.Context) (Meta, bool) {
	meta, ok := ctx.Value(metaKey{}).(Meta)
	return meta, ok
}

// Func adapts a function to Sink
type Func func(ctx context.Context, lines []string) error

// Emit calls f
func (f Func) Emit(ctx context.Context, lines []string) error {
	return f(ctx, lines)
}

// New builds the sink described by cfg
func New(cfg config.Sink, logger zerolog.Logger) (EmitCloser, error) {
	switch cfg.Type {
	case "", config.SinkStdout:
		return NewStdout(), nil
	case config.SinkFile:
		return NewFile(cfg.Path, cfg.MaxSizeMB), nil
	case config.SinkKafka:
		return NewKafka(cfg.Brokers, cfg.Topic, logger)
	case config.SinkSpool:
		return NewSpool(cfg.SpoolDir, logger)
	default:
		return nil, fmt.Errorf("%w: unknown sink type %q", config.ErrConfiguration, cfg.Type)
	}
}
