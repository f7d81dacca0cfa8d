package accel

import (
	"errors"
	"testing"
)

func TestNewBatch(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		expected int
	}{
		{"valid size", 50, 50},
		{"zero defaults to 100", 0, 100},
		{"negative defaults to 100", -1, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := NewBatch(tt.size)
			if batch.Size() != tt.expected {
				t.Errorf("expected size %d, got %d", tt.expected, batch.Size())
			}
		})
	}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		lines   int
		lengths []int
	}{
		{"empty", 3, 0, nil},
		{"smaller than size", 3, 2, []int{2}},
		{"exact multiple", 2, 4, []int{2, 2}},
		{"remainder", 3, 7, []int{3, 3, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := make([]string, tt.lines)
			for i := range lines {
				lines[i] = string(rune('a' + i))
			}

			chunks := NewBatch(tt.size).Chunks(lines)
			if len(chunks) != len(tt.lengths) {
				t.Fatalf("expected %d chunks, got %d", len(tt.lengths), len(chunks))
			}

			next := 0
			for i, chunk := range chunks {
				if len(chunk) != tt.lengths[i] {
					t.Errorf("chunk %d: expected %d lines, got %d", i, tt.lengths[i], len(chunk))
				}
				for _, line := range chunk {
					if line != lines[next] {
						t.Errorf("expected %q at position %d, got %q", lines[next], next, line)
					}
					next++
				}
			}
		})
	}
}

func TestChunkAppendDoesNotClobber(t *testing.T) {
	lines := []string{"a", "b", "c"}
	chunks := NewBatch(2).Chunks(lines)

	_ = append(chunks[0], "x")
	if lines[2] != "c" {
		t.Errorf("append to a chunk overwrote the next line: %v", lines)
	}
}

func TestEachStopsOnError(t *testing.T) {
	boom := errors.New("nack")
	calls := 0

	err := NewBatch(1).Each([]string{"a", "b", "c"}, func([]string) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected nack error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
