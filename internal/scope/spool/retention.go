package spool

import (
	"fmt"
	"os"
	"time"
)

// Retention bounds how many sealed segments a spool directory keeps.
// The newest segment is the active one and is never removed.
type Retention struct {
	MaxSegments int           // 0 = unlimited
	MaxAge      time.Duration // 0 = unlimited
}

// Prune removes sealed segments outside the retention policy, oldest first.
// It returns the number of segments deleted.
func Prune(dir string, r Retention) (int, error) {
	segments, err := ListSegments(dir)
	if err != nil {
		return 0, err
	}
	if len(segments) <= 1 {
		return 0, nil
	}

	sealed := segments[:len(segments)-1]
	cutoff := time.Now().Add(-r.MaxAge)
	deleted := 0

	for i, seg := range sealed {
		remaining := len(sealed) - i
		expire := r.MaxSegments > 0 && remaining > r.MaxSegments

		if !expire && r.MaxAge > 0 {
			stat, err := os.Stat(seg.Path)
			if err != nil {
				return deleted, fmt.Errorf("failed to stat segment %s: %w", seg.Path, err)
			}
			expire = stat.ModTime().Before(cutoff)
		}
		if !expire {
			continue
		}

		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("failed to delete segment %s: %w", seg.Path, err)
		}
		deleted++
	}

	return deleted, nil
}
