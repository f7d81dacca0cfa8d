package sink

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dsjohal14/sqlpoll/internal/scope/spool"
)

// SpoolSink appends every emitted batch to a durable local spool. Emit returns only after fsync.
type SpoolSink struct {
	writer *spool.Writer
}

// NewSpool opens the spool in dir
func NewSpool(dir string, logger zerolog.Logger) (*SpoolSink, error) {
	w, err := spool.NewWriter(dir, spool.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &SpoolSink{writer: w}, nil
}

// Emit spools lines as one record. Empty batches are not recorded.
func (s *SpoolSink) Emit(ctx context.Context, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	meta, _ := MetaFrom(ctx)
	_, err := s.writer.Append(spool.Batch{
		SourceID:  meta.SourceID,
		CycleID:   meta.CycleID,
		Cursor:    meta.Cursor,
		CreatedAt: time.Now().UTC(),
		Lines:     lines,
	})
	return err
}

// Close closes the spool writer
func (s *SpoolSink) Close() error {
	return s.writer.Close()
}
