// Package dedupe tracks idempotency keys for person creation.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the outcome of a Claim.
type State int

const (
	// Claimed means the caller owns the key and must Complete or Release it.
	Claimed State = iota + 1
	// Done means an earlier request with the key created a person.
	Done
)

// Keys records idempotency keys so a create is applied at most once per key.
type Keys interface {
	// Claim takes ownership of key, or reports the person id recorded for it.
	// While another caller holds the key, Claim waits for it to finish.
	Claim(ctx context.Context, key string) (State, int64, error)

	// Complete records the person created under a claimed key.
	Complete(ctx context.Context, key string, personID int64)

	// Release drops a claimed key so the request can be retried.
	Release(ctx context.Context, key string)

	Size() int64
}

// entry is one key in the recency list. personID is 0 while the key is pending.
type entry struct {
	key      string
	personID int64
	done     chan struct{}
	prev     *entry
	next     *entry
}

// finish wakes callers waiting on a pending entry.
func (e *entry) finish() {
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
}

// inMemoryKeys keeps keys in a map plus a list ordered newest to oldest.
type inMemoryKeys struct {
	mu      sync.Mutex
	entries map[string]*entry
	head    *entry // newest
	tail    *entry // oldest
	maxSize int    // 0 or negative = UNBOUNDED
	size    atomic.Int64
}

// NewInMemoryKeys creates an in-memory key store with configuration options.
func NewInMemoryKeys(opts ...Option) Keys {
	d := &inMemoryKeys{
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.entries = make(map[string]*entry)
	return d
}

func (d *inMemoryKeys) Claim(ctx context.Context, key string) (State, int64, error) {
	for {
		d.mu.Lock()
		e, ok := d.entries[key]
		if !ok {
			d.push(key)
			d.mu.Unlock()
			return Claimed, 0, nil
		}
		if e.personID > 0 {
			d.mu.Unlock()
			return Done, e.personID, nil
		}
		wait := e.done
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		case <-wait:
		}
	}
}

func (d *inMemoryKeys) Complete(_ context.Context, key string, personID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// the key may have been evicted while pending
	if e, ok := d.entries[key]; ok {
		e.personID = personID
		e.finish()
	}
}

func (d *inMemoryKeys) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok && e.personID == 0 {
		d.remove(e)
	}
}

// push adds a pending key at the head, evicting the oldest completed keys
// when full. Pending keys are never evicted, so the store may briefly
// exceed maxSize while every key is in flight.
// Must be called with d.mu held.
func (d *inMemoryKeys) push(key string) {
	if d.maxSize > 0 {
		for e := d.tail; e != nil && len(d.entries) >= d.maxSize; {
			prev := e.prev
			if e.personID > 0 {
				d.remove(e)
			}
			e = prev
		}
	}
	e := &entry{key: key, done: make(chan struct{}), next: d.head}
	if d.head != nil {
		d.head.prev = e
	}
	d.head = e
	if d.tail == nil {
		d.tail = e
	}
	d.entries[key] = e
	d.size.Add(1)
}

// remove unlinks e. Must be called with d.mu held.
func (d *inMemoryKeys) remove(e *entry) {
	if e == nil {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		d.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		d.tail = e.prev
	}
	e.prev, e.next = nil, nil
	delete(d.entries, e.key)
	e.finish()
	d.size.Add(-1)
}

// Size returns the current number of keys.
func (d *inMemoryKeys) Size() int64 {
	return d.size.Load()
}
