package spool

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxSegmentSize is the default max size before rotation (64MB)
const DefaultMaxSegmentSize = 64 * 1024 * 1024

// ErrClosed is returned when appending to a closed writer
var ErrClosed = errors.New("spool writer is closed")

// ErrBroken is returned after a failed append could not be rolled back
var ErrBroken = errors.New("spool writer is broken")

// segmentFile is the part of *os.File the writer uses
type segmentFile interface {
	io.Writer
	io.Closer
	Sync() error
	Truncate(size int64) error
}

// Writer is a thread-safe spool writer. Every append is fsynced before it returns.
type Writer struct {
	mu        sync.Mutex
	dir       string
	file      segmentFile
	segmentID uint64
	seq       uint64 // next sequence number to assign
	offset    int64
	maxSize   int64
	logger    zerolog.Logger
	closed    bool
	broken    error
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithMaxSegmentSize sets the max segment size
func WithMaxSegmentSize(size int64) WriterOption {
	return func(w *Writer) {
		w.maxSize = size
	}
}

// WithLogger sets the writer logger
func WithLogger(logger zerolog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// NewWriter opens the spool in dir, resuming after the last valid record of the newest segment
func NewWriter(dir string, opts ...WriterOption) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	w := &Writer{
		dir:       dir,
		segmentID: 1,
		seq:       1,
		maxSize:   DefaultMaxSegmentSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	segments, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}
	if len(segments) > 0 {
		w.segmentID = segments[len(segments)-1].ID
	}

	if err := w.openSegment(); err != nil {
		return nil, err
	}

	// Resume numbering after the last record on disk.
	if last, err := lastSeq(segments); err != nil {
		_ = w.file.Close()
		return nil, err
	} else if last > 0 {
		w.seq = last + 1
	}

	return w, nil
}

// openSegment opens the current segment for append, truncating any corrupt tail
func (w *Writer) openSegment() error {
	path := segmentPath(w.dir, w.segmentID)

	if stat, err := os.Stat(path); err == nil && stat.Size() > 0 {
		validOffset, err := findLastValidOffset(path)
		if err != nil {
			return fmt.Errorf("failed to scan segment for corruption: %w", err)
		}

		if validOffset < stat.Size() {
			w.logger.Warn().
				Str("segment", path).
				Int64("size", stat.Size()).
				Int64("valid", validOffset).
				Msg("truncating corrupt spool tail")
			if err := os.Truncate(path, validOffset); err != nil {
				return fmt.Errorf("failed to truncate corrupt segment: %w", err)
			}
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat segment %s: %w", path, err)
	}

	w.file = f
	w.offset = stat.Size()
	return nil
}

// findLastValidOffset scans a segment and returns the offset after the last valid record
func findLastValidOffset(path string) (int64, error) {
	it, err := NewSegmentIterator(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()

	for it.Next() {
	}
	// Iteration stops at the first torn or corrupt record; everything before it is valid.
	return it.Offset(), nil
}

func lastSeq(segments []Segment) (uint64, error) {
	for i := len(segments) - 1; i >= 0; i-- {
		it, err := NewSegmentIterator(segments[i].Path)
		if err != nil {
			return 0, err
		}
		var last uint64
		for it.Next() {
			last = it.Record().Seq
		}
		_ = it.Close()
		if last > 0 {
			return last, nil
		}
	}
	return 0, nil
}

// Append writes a batch record, syncs it to disk and returns its sequence number
func (w *Writer) Append(b Batch) (uint64, error) {
	payload, err := EncodeBatch(b)
	if err != nil {
		return 0, fmt.Errorf("failed to encode batch: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if w.broken != nil {
		return 0, fmt.Errorf("%w: %v", ErrBroken, w.broken)
	}

	seq := w.seq
	rec, err := NewRecord(RecordTypeBatch, seq, payload)
	if err != nil {
		return 0, fmt.Errorf("failed to create record: %w", err)
	}

	data := rec.Encode()
	n, err := w.file.Write(data)
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = w.file.Sync()
	}
	if err != nil {
		w.discardTailLocked()
		return 0, fmt.Errorf("failed to write record: %w", err)
	}

	w.seq++
	w.offset += int64(n)

	if w.offset >= w.maxSize {
		if err := w.rotateLocked(); err != nil {
			w.broken = err
			return 0, fmt.Errorf("failed to rotate segment: %w", err)
		}
	}

	return seq, nil
}

// discardTailLocked cuts the segment back to the end of the last acknowledged record.
// Later records must never follow torn bytes: recovery stops at the first corrupt record.
func (w *Writer) discardTailLocked() {
	if err := w.file.Truncate(w.offset); err != nil {
		w.broken = err
		w.logger.Error().Err(err).Int64("offset", w.offset).Msg("failed to discard torn spool record")
	}
}

// rotateLocked seals the current segment and opens the next one
func (w *Writer) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close segment: %w", err)
	}

	w.segmentID++
	w.logger.Debug().Uint64("segment", w.segmentID).Msg("spool segment rotated")
	return w.openSegment()
}

// Close flushes and closes the current segment
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync on close: %w", err)
		}
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close segment: %w", err)
		}
	}
	return nil
}

// NextSeq returns the next sequence number to be assigned
func (w *Writer) NextSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// CurrentSegmentID returns the current segment ID
func (w *Writer) CurrentSegmentID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segmentID
}

// Dir returns the spool directory
func (w *Writer) Dir() string {
	return w.dir
}

func segmentPath(dir string, segmentID uint64) string {
	return filepath.Join(dir, fmt.Sprintf("spool_%012d.seg", segmentID))
}

var _ io.Closer = (*Writer)(nil)
