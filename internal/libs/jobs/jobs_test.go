package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewScheduler(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	if s == nil {
		t.Fatal("NewScheduler() returned nil")
	}

	if s.Count() != 0 {
		t.Errorf("new scheduler should be empty, got %d jobs", s.Count())
	}
}

func TestAdd(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	job, err := s.Add("student", 10*time.Second, func(context.Context) {})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if job.ID != "student" {
		t.Errorf("expected job ID student, got %s", job.ID)
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 job, got %d", s.Count())
	}

	if _, err := s.Add("student", time.Second, func(context.Context) {}); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
	if _, err := s.Add("orders", 0, func(context.Context) {}); err == nil {
		t.Error("expected zero interval to be rejected")
	}

	s.Remove("student")
	s.Remove("unknown")
	if s.Count() != 0 {
		t.Errorf("expected 0 jobs after remove, got %d", s.Count())
	}
}

func TestNext(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	if _, err := s.Add("student", time.Hour, func(context.Context) {}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	next, ok := s.Next("student")
	if !ok {
		t.Fatal("expected job to be known")
	}
	if until := time.Until(next); until <= 0 || until > time.Hour+time.Second {
		t.Errorf("unexpected next activation in %s", until)
	}
	if _, ok := s.Next("missing"); ok {
		t.Error("expected unknown job")
	}
}

func TestJobsRunAndSkipOverlap(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	var runs, concurrent, maxConcurrent atomic.Int32
	_, err := s.Add("slow", time.Second, func(ctx context.Context) {
		n := concurrent.Add(1)
		if n > maxConcurrent.Load() {
			maxConcurrent.Store(n)
		}
		runs.Add(1)
		select {
		case <-time.After(2500 * time.Millisecond):
		case <-ctx.Done():
		}
		concurrent.Add(-1)
	})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	s.Start()
	time.Sleep(3500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	if runs.Load() == 0 {
		t.Fatal("expected the job to run at least once")
	}
	if maxConcurrent.Load() != 1 {
		t.Errorf("expected overlapping ticks to be skipped, saw %d concurrent runs", maxConcurrent.Load())
	}
}
