// Package journal keeps the most recent person changes in memory.
package journal

import (
	"context"
	"sync"

	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/metrics"
)

const defaultSize = 1000

// Journal is a fixed-size ring of changes. Appends overwrite the oldest entry.
type Journal struct {
	mu    sync.RWMutex
	buf   []model.Change
	next  int // slot for the next append
	count int
	total int64
}

// New returns a journal that keeps the newest size changes.
func New(size int) *Journal {
	if size < 1 {
		size = defaultSize
	}
	return &Journal{buf: make([]model.Change, size)}
}

// Append records c.
func (j *Journal) Append(_ context.Context, c model.Change) error { //nolint:gocritic // hugeParam: copied into the ring
	j.mu.Lock()
	j.buf[j.next] = c
	j.next = (j.next + 1) % len(j.buf)
	if j.count < len(j.buf) {
		j.count++
	}
	j.total++
	n := j.count
	j.mu.Unlock()

	metrics.RecordJournalAppend()
	metrics.UpdateJournalSize(n)
	return nil
}

// Recent returns up to n changes, most recently appended first.
// Concurrent writers may append in a different order than they published.
func (j *Journal) Recent(n int) []model.Change {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n > j.count {
		n = j.count
	}
	if n < 0 {
		n = 0
	}
	out := make([]model.Change, 0, n)
	for i := 1; i <= n; i++ {
		idx := (j.next - i + len(j.buf)) % len(j.buf)
		out = append(out, j.buf[idx])
	}
	return out
}

// Len returns the number of retained changes.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count
}

// Cap returns the maximum number of retained changes.
func (j *Journal) Cap() int {
	return len(j.buf)
}

// Total returns the number of changes ever appended.
func (j *Journal) Total() int64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.total
}
