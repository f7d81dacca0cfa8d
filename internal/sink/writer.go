package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// WriterSink writes one line per record to an io.Writer
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewWriter creates a sink on w. The sink does not close w.
func NewWriter(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// NewStdout creates a sink on standard output
func NewStdout() *WriterSink {
	return NewWriter(os.Stdout)
}

// NewFile creates a sink appending to path, rotated by size
func NewFile(path string, maxSizeMB int) *WriterSink {
	lj := &lumberjack.Logger{
		Filename:  path,
		MaxSize:   maxSizeMB,
		LocalTime: true,
	}
	return &WriterSink{w: lj, closer: lj}
}

// Emit writes lines, each terminated by a newline
func (s *WriterSink) Emit(ctx context.Context, lines []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bw := bufio.NewWriter(s.w)
	for _, line := range lines {
		if _, err := bw.WriteString(line); err != nil {
			return fmt.Errorf("failed to write line: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write line: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush lines: %w", err)
	}
	return nil
}

// Close closes the underlying file, if the sink owns one
func (s *WriterSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
