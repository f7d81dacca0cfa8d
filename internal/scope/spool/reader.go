package spool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Segment is a spool segment file on disk
type Segment struct {
	ID   uint64
	Path string
}

// ListSegments returns the segments in dir ordered by id
func ListSegments(dir string) ([]Segment, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "spool_*.seg"))
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}

	segments := make([]Segment, 0, len(matches))
	for _, path := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "spool_"), ".seg")
		id, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		segments = append(segments, Segment{ID: id, Path: path})
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].ID < segments[j].ID })
	return segments, nil
}

// SegmentIterator iterates over records in a spool segment file
type SegmentIterator struct {
	file   *os.File
	offset int64
	record *Record
	err    error
}

// NewSegmentIterator creates an iterator for the given segment file
func NewSegmentIterator(filePath string) (*SegmentIterator, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %s: %w", filePath, err)
	}
	return &SegmentIterator{file: f}, nil
}

// Next advances to the next record. Returns false when done or on error.
// Offset always points after the last valid record.
func (it *SegmentIterator) Next() bool {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(it.file, header); err != nil {
		if !errors.Is(err, io.EOF) {
			it.err = fmt.Errorf("torn header at offset %d: %w", it.offset, err)
		}
		return false
	}

	rec, err := parseHeader(header)
	if err != nil {
		it.err = fmt.Errorf("corrupt record at offset %d: %w", it.offset, err)
		return false
	}

	body := make([]byte, rec.PayloadLen+4)
	if _, err := io.ReadFull(it.file, body); err != nil {
		it.err = fmt.Errorf("torn payload at offset %d: %w", it.offset, err)
		return false
	}
	rec.Payload = body[:rec.PayloadLen]
	rec.PayloadCRC = binary.LittleEndian.Uint32(body[rec.PayloadLen:])

	if err := rec.VerifyChecksums(); err != nil {
		it.err = fmt.Errorf("corrupt record at offset %d: %w", it.offset, err)
		return false
	}

	it.record = rec
	it.offset += int64(rec.TotalSize())
	return true
}

// Record returns the current record
func (it *SegmentIterator) Record() *Record {
	return it.record
}

// Err returns any error that occurred during iteration
func (it *SegmentIterator) Err() error {
	return it.err
}

// Offset returns the byte offset after the last valid record
func (it *SegmentIterator) Offset() int64 {
	return it.offset
}

// Close closes the iterator
func (it *SegmentIterator) Close() error {
	if it.file != nil {
		return it.file.Close()
	}
	return nil
}

// Entry is a decoded batch with its sequence number
type Entry struct {
	Seq   uint64
	Batch Batch
}

// Walk calls fn for every batch in dir in sequence order. A torn tail in the newest
// segment ends the walk silently; corruption anywhere else is an error.
func Walk(dir string, fn func(Entry) error) error {
	segments, err := ListSegments(dir)
	if err != nil {
		return err
	}

	for i, seg := range segments {
		it, err := NewSegmentIterator(seg.Path)
		if err != nil {
			return err
		}

		for it.Next() {
			rec := it.Record()
			b, err := DecodeBatch(rec.Payload)
			if err != nil {
				_ = it.Close()
				return fmt.Errorf("failed to decode record %d: %w", rec.Seq, err)
			}
			if err := fn(Entry{Seq: rec.Seq, Batch: b}); err != nil {
				_ = it.Close()
				return err
			}
		}
		_ = it.Close()

		if it.Err() != nil && i < len(segments)-1 {
			return fmt.Errorf("segment %s: %w", seg.Path, it.Err())
		}
	}
	return nil
}

// ReadAll returns every batch in dir
func ReadAll(dir string) ([]Entry, error) {
	var entries []Entry
	err := Walk(dir, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}
