package spool

import (
	"testing"
	"time"
)

func TestRecordEncodeDecode(t *testing.T) {
	rec, err := NewRecord(RecordTypeBatch, 7, []byte("payload"))
	if err != nil {
		t.Fatalf("NewRecord() failed: %v", err)
	}

	data := rec.Encode()
	if len(data) != rec.TotalSize() {
		t.Fatalf("expected %d bytes, got %d", rec.TotalSize(), len(data))
	}

	decoded, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord() failed: %v", err)
	}
	if decoded.Seq != 7 || decoded.Type != RecordTypeBatch || string(decoded.Payload) != "payload" {
		t.Errorf("unexpected record: %+v", decoded)
	}
}

func TestDecodeRecordCorruption(t *testing.T) {
	rec, _ := NewRecord(RecordTypeBatch, 1, []byte("payload"))

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { b[0] ^= 0xff; return b }},
		{"bad header crc", func(b []byte) []byte { b[9] ^= 0x01; return b }},
		{"bad payload", func(b []byte) []byte { b[HeaderSize] ^= 0x01; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-2] }},
		{"short header", func(b []byte) []byte { return b[:10] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRecord(tt.mutate(rec.Encode())); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestNewRecordTooLarge(t *testing.T) {
	if _, err := NewRecord(RecordTypeBatch, 1, make([]byte, MaxPayloadSize+1)); err == nil {
		t.Error("expected error for oversized payload")
	}
}

func TestBatchPayload(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 123, time.UTC)
	in := Batch{
		SourceID:  "student",
		CycleID:   "c-1",
		Cursor:    42,
		CreatedAt: created,
		Lines:     []string{"1,a,", "", "2,,c"},
	}

	payload, err := EncodeBatch(in)
	if err != nil {
		t.Fatalf("EncodeBatch() failed: %v", err)
	}

	out, err := DecodeBatch(payload)
	if err != nil {
		t.Fatalf("DecodeBatch() failed: %v", err)
	}
	if out.SourceID != in.SourceID || out.CycleID != in.CycleID || out.Cursor != in.Cursor {
		t.Errorf("header mismatch: %+v", out)
	}
	if !out.CreatedAt.Equal(created) {
		t.Errorf("expected %s, got %s", created, out.CreatedAt)
	}
	if len(out.Lines) != 3 || out.Lines[0] != "1,a," || out.Lines[1] != "" || out.Lines[2] != "2,,c" {
		t.Errorf("unexpected lines: %q", out.Lines)
	}

	if _, err := DecodeBatch(payload[:len(payload)-3]); err == nil {
		t.Error("expected error for truncated payload")
	}
}
