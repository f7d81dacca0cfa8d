// Package spool implements a durable, append-only log of emitted batches with CRC32 checksums.
package spool

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

// Spool Record Format (24-byte header + payload):
// ┌─────────────────────────────────────────────────────────────┐
// │ Magic (4B)  │ Type (1B) │ Flags (1B) │ Reserved (2B)        │
// ├─────────────────────────────────────────────────────────────┤
// │ Seq (8B, uint64) - record sequence number                   │
// ├─────────────────────────────────────────────────────────────┤
// │ PayloadLen (4B, uint32)                                     │
// ├─────────────────────────────────────────────────────────────┤
// │ HeaderCRC32 (4B) - checksum of bytes [0:20]                 │
// ├─────────────────────────────────────────────────────────────┤
// │ Payload (variable) - encoded batch                          │
// ├─────────────────────────────────────────────────────────────┤
// │ PayloadCRC32 (4B) - checksum of payload                     │
// └─────────────────────────────────────────────────────────────┘

const (
	// MagicBytes identifies spool records
	MagicBytes uint32 = 0x53504C52 // "SPLR"

	// HeaderSize is the fixed size of the record header
	HeaderSize = 24

	// MaxPayloadSize limits individual record size (10MB)
	MaxPayloadSize = 10 * 1024 * 1024

	// MaxSourceIDLen limits source id length
	MaxSourceIDLen = 65535 // uint16 max
)

// RecordType identifies the type of spool record
type RecordType uint8

const (
	RecordTypeBatch RecordType = 0x01 // Emitted lines of one cycle chunk
)

func (r RecordType) String() string {
	switch r {
	case RecordTypeBatch:
		return "BATCH"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", r)
	}
}

// Record represents a spool record with header and payload
type Record struct {
	Magic      uint32
	Type       RecordType
	Flags      uint8
	Reserved   uint16
	Seq        uint64
	PayloadLen uint32
	HeaderCRC  uint32
	Payload    []byte
	PayloadCRC uint32
}

// Batch is the decoded payload of a RecordTypeBatch record
type Batch struct {
	SourceID  string
	CycleID   string
	Cursor    int64 // cursor the query was bound to
	CreatedAt time.Time
	Lines     []string
}

// NewRecord creates a new record with the given type and payload
func NewRecord(recType RecordType, seq uint64, payload []byte) (*Record, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d > %d", len(payload), MaxPayloadSize)
	}

	rec := &Record{
		Magic:      MagicBytes,
		Type:       recType,
		Seq:        seq,
		PayloadLen: uint32(len(payload)),
		Payload:    payload,
	}
	rec.HeaderCRC = crc32.ChecksumIEEE(rec.headerBytes())
	rec.PayloadCRC = crc32.ChecksumIEEE(payload)
	return rec, nil
}

// headerBytes returns header bytes [0:20], the range covered by HeaderCRC
func (r *Record) headerBytes() []byte {
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint32(buf[0:4], r.Magic)
	buf[4] = byte(r.Type)
	buf[5] = r.Flags
	binary.LittleEndian.PutUint16(buf[6:8], r.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], r.Seq)
	binary.LittleEndian.PutUint32(buf[16:20], r.PayloadLen)
	return buf
}

// Encode serializes the record to bytes
func (r *Record) Encode() []byte {
	buf := make([]byte, 0, r.TotalSize())
	buf = append(buf, r.headerBytes()...)
	buf = binary.LittleEndian.AppendUint32(buf, r.HeaderCRC)
	buf = append(buf, r.Payload...)
	buf = binary.LittleEndian.AppendUint32(buf, r.PayloadCRC)
	return buf
}

// parseHeader decodes and verifies a 24-byte header
func parseHeader(header []byte) (*Record, error) {
	rec := &Record{
		Magic:      binary.LittleEndian.Uint32(header[0:4]),
		Type:       RecordType(header[4]),
		Flags:      header[5],
		Reserved:   binary.LittleEndian.Uint16(header[6:8]),
		Seq:        binary.LittleEndian.Uint64(header[8:16]),
		PayloadLen: binary.LittleEndian.Uint32(header[16:20]),
		HeaderCRC:  binary.LittleEndian.Uint32(header[20:24]),
	}

	if rec.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid magic: expected 0x%X, got 0x%X", MagicBytes, rec.Magic)
	}
	if expected := crc32.ChecksumIEEE(header[0:20]); rec.HeaderCRC != expected {
		return nil, fmt.Errorf("header CRC mismatch: expected 0x%X, got 0x%X", expected, rec.HeaderCRC)
	}
	if rec.PayloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d > %d", rec.PayloadLen, MaxPayloadSize)
	}
	return rec, nil
}

// DecodeRecord deserializes a record from bytes
func DecodeRecord(data []byte) (*Record, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("data too short for header: %d < %d", len(data), HeaderSize)
	}

	rec, err := parseHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}

	totalLen := rec.TotalSize()
	if len(data) < totalLen {
		return nil, fmt.Errorf("data too short for payload: %d < %d", len(data), totalLen)
	}

	rec.Payload = make([]byte, rec.PayloadLen)
	copy(rec.Payload, data[HeaderSize:HeaderSize+int(rec.PayloadLen)])
	rec.PayloadCRC = binary.LittleEndian.Uint32(data[HeaderSize+int(rec.PayloadLen) : totalLen])

	if err := rec.VerifyChecksums(); err != nil {
		return nil, err
	}
	return rec, nil
}

// TotalSize returns the total size of the encoded record
func (r *Record) TotalSize() int {
	return HeaderSize + int(r.PayloadLen) + 4
}

// VerifyChecksums validates both header and payload CRCs
func (r *Record) VerifyChecksums() error {
	if expected := crc32.ChecksumIEEE(r.headerBytes()); r.HeaderCRC != expected {
		return fmt.Errorf("header CRC mismatch: expected 0x%X, got 0x%X", expected, r.HeaderCRC)
	}
	if expected := crc32.ChecksumIEEE(r.Payload); r.PayloadCRC != expected {
		return fmt.Errorf("payload CRC mismatch: expected 0x%X, got 0x%X", expected, r.PayloadCRC)
	}
	return nil
}

// EncodeBatch serializes a batch payload
// Format:
// - SourceID Length (2B) + SourceID (variable)
// - CycleID Length (2B) + CycleID (variable)
// - Cursor (8B, int64)
// - CreatedAt (8B, unix nanoseconds)
// - Line count (4B), then per line: Length (4B) + bytes
func EncodeBatch(b Batch) ([]byte, error) {
	if len(b.SourceID) > MaxSourceIDLen {
		return nil, fmt.Errorf("source id too long: %d > %d", len(b.SourceID), MaxSourceIDLen)
	}
	if len(b.CycleID) > MaxSourceIDLen {
		return nil, fmt.Errorf("cycle id too long: %d > %d", len(b.CycleID), MaxSourceIDLen)
	}

	size := 2 + len(b.SourceID) + 2 + len(b.CycleID) + 8 + 8 + 4
	for _, line := range b.Lines {
		size += 4 + len(line)
	}
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("batch too large: %d > %d", size, MaxPayloadSize)
	}

	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(b.SourceID)))
	buf = append(buf, b.SourceID...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(b.CycleID)))
	buf = append(buf, b.CycleID...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.Cursor))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.CreatedAt.UnixNano()))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.Lines)))
	for _, line := range b.Lines {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(line)))
		buf = append(buf, line...)
	}
	return buf, nil
}

// DecodeBatch deserializes a batch payload
func DecodeBatch(data []byte) (Batch, error) {
	var b Batch
	r := bytes.NewReader(data)

	sourceID, err := readString16(r)
	if err != nil {
		return b, fmt.Errorf("failed to read source id: %w", err)
	}
	cycleID, err := readString16(r)
	if err != nil {
		return b, fmt.Errorf("failed to read cycle id: %w", err)
	}

	var fixed struct {
		Cursor    int64
		CreatedAt int64
		Count     uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return b, fmt.Errorf("failed to read batch header: %w", err)
	}
	if int64(fixed.Count)*4 > int64(r.Len()) {
		return b, fmt.Errorf("line count %d exceeds payload", fixed.Count)
	}

	b.SourceID = sourceID
	b.CycleID = cycleID
	b.Cursor = fixed.Cursor
	b.CreatedAt = time.Unix(0, fixed.CreatedAt).UTC()
	b.Lines = make([]string, 0, fixed.Count)

	for i := uint32(0); i < fixed.Count; i++ {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return b, fmt.Errorf("failed to read line %d length: %w", i, err)
		}
		if int64(n) > int64(r.Len()) {
			return b, fmt.Errorf("line %d length %d exceeds payload", i, n)
		}
		line := make([]byte, n)
		if _, err := r.Read(line); err != nil && n > 0 {
			return b, fmt.Errorf("failed to read line %d: %w", i, err)
		}
		b.Lines = append(b.Lines, string(line))
	}

	return b, nil
}

func readString16(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("length %d exceeds payload", n)
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil && n > 0 {
		return "", err
	}
	return string(buf), nil
}
