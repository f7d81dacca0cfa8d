// Package accel provides utilities for batched emission.
package accel

// DefaultSize is used when a non-positive size is requested
const DefaultSize = 100

// Batch splits work into fixed-size groups
type Batch struct {
	size int
}

// NewBatch creates a new batch helper with the given size
func NewBatch(size int) *Batch {
	if size <= 0 {
		size = DefaultSize
	}
	return &Batch{size: size}
}

// Size returns the batch size
func (b *Batch) Size() int {
	return b.size
}

// Chunks splits lines into consecutive groups of at most Size elements.
// The groups share the backing array of lines. An empty input yields no groups.
func (b *Batch) Chunks(lines []string) [][]string {
	if len(lines) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(lines)+b.size-1)/b.size)
	for start := 0; start < len(lines); start += b.size {
		end := start + b.size
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, lines[start:end:end])
	}
	return chunks
}

// Each calls fn for every chunk in order and stops at the first error
func (b *Batch) Each(lines []string, fn func(chunk []string) error) error {
	for _, chunk := range b.Chunks(lines) {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}
