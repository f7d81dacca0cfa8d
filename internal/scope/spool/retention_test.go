package spool

import (
	"os"
	"testing"
	"time"
)

func fillSegments(t *testing.T, dir string, n int) {
	t.Helper()
	writer, err := NewWriter(dir, WithMaxSegmentSize(1))
	if err != nil {
		t.Fatalf("failed to create spool writer: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := writer.Append(batch("orders", "line")); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}
	_ = writer.Close()
}

func TestPruneMaxSegments(t *testing.T) {
	dir := t.TempDir()
	fillSegments(t, dir, 5) // segments 1..5 sealed, 6 active and empty

	deleted, err := Prune(dir, Retention{MaxSegments: 2})
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted segments, got %d", deleted)
	}

	segments, _ := ListSegments(dir)
	if len(segments) != 3 || segments[0].ID != 4 {
		t.Fatalf("unexpected remaining segments: %+v", segments)
	}

	entries, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Seq != 4 {
		t.Errorf("unexpected entries after prune: %+v", entries)
	}
}

func TestPruneMaxAge(t *testing.T) {
	dir := t.TempDir()
	fillSegments(t, dir, 3)

	segments, _ := ListSegments(dir)
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(segments[0].Path, old, old); err != nil {
		t.Fatalf("Chtimes() failed: %v", err)
	}

	deleted, err := Prune(dir, Retention{MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted segment, got %d", deleted)
	}
}

func TestPruneKeepsActiveSegment(t *testing.T) {
	dir := t.TempDir()
	fillSegments(t, dir, 0)

	deleted, err := Prune(dir, Retention{MaxSegments: 1, MaxAge: time.Nanosecond})
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("active segment must never be pruned, deleted %d", deleted)
	}
}
