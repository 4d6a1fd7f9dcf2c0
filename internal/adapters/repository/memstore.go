package repository

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: first name ASC, last name ASC, then id ASC, which is the
// order List must return. In-order traversal yields the listing.

// treap node; the full record lives in MemStore.byID
type node struct {
	first string
	last  string
	id    int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether a is listed before b.
func less(a, b *node) bool {
	if a.first != b.first {
		return a.first < b.first
	}
	if a.last != b.last {
		return a.last < b.last
	}
	return a.id < b.id
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n, nn *node) *node {
	if n == nil {
		nn.size = 1
		return nn
	}
	if less(nn, n) {
		n.left = insert(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n, key *node) *node {
	if n == nil {
		return nil
	}
	if n.id == key.id {
		// Merge children by rotating highest priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, key)
		}
	} else if less(key, n) {
		n.left = deleteNode(n.left, key)
	} else {
		n.right = deleteNode(n.right, key)
	}
	fix(n)
	return n
}

// collectAll appends all persons in listing order.
func collectAll(n *node, byID map[int64]model.Person, out *[]model.Person) {
	if n == nil {
		return
	}
	collectAll(n.left, byID, out)
	if p, ok := byID[n.id]; ok {
		*out = append(*out, p)
	}
	collectAll(n.right, byID, out)
}

// MemStore keeps persons in process memory. Ids are allocated from 1.
type MemStore struct {
	mu     sync.RWMutex
	root   *node
	byID   map[int64]model.Person
	nextID int64
	rng    *rand.Rand
	seed   uint64

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemStore constructs a treap store with configuration options.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		byID:                  make(map[int64]model.Person),
		metricsUpdateInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seed == 0 {
		s.seed = rand.Uint64()
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)
	return s
}

func keyOf(p model.Person) *node {
	return &node{first: p.FirstName, last: p.LastName, id: p.PersonID}
}

// List implements Store.List in O(n).
func (s *MemStore) List(_ context.Context) (out []model.Person, err error) {
	defer func(start time.Time) { observe(opList, start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	out = make([]model.Person, 0, len(s.byID))
	collectAll(s.root, s.byID, &out)
	return out, nil
}

// Create implements Store.Create with O(log n) expected time.
func (s *MemStore) Create(_ context.Context, p model.Person) (id int64, err error) {
	defer func(start time.Time) { observe(opCreate, start, err) }(time.Now())

	s.mu.Lock()
	s.nextID++
	p.PersonID = s.nextID
	s.byID[p.PersonID] = p
	nn := keyOf(p)
	nn.prio = s.rng.Uint64()
	s.root = insert(s.root, nn)
	count := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateStoreRecords(count)
	return p.PersonID, nil
}

// Read implements Store.Read in O(1).
func (s *MemStore) Read(_ context.Context, id int64) (p model.Person, err error) {
	defer func(start time.Time) { observe(opRead, start, err) }(time.Now())

	if err = checkID(id); err != nil {
		return model.Person{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return model.Person{}, ErrNotFound
	}
	return p, nil
}

// Update implements Store.Update with O(log n) expected time.
func (s *MemStore) Update(_ context.Context, p model.Person) (err error) {
	defer func(start time.Time) { observe(opUpdate, start, err) }(time.Now())

	if err = checkID(p.PersonID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[p.PersonID]
	if !ok {
		return ErrNotFound
	}
	s.root = deleteNode(s.root, keyOf(old))
	s.byID[p.PersonID] = p
	nn := keyOf(p)
	nn.prio = s.rng.Uint64()
	s.root = insert(s.root, nn)
	return nil
}

// Delete implements Store.Delete with O(log n) expected time.
func (s *MemStore) Delete(_ context.Context, id int64) (err error) {
	defer func(start time.Time) { observe(opDelete, start, err) }(time.Now())

	if err = checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	old, ok := s.byID[id]
	if ok {
		s.root = deleteNode(s.root, keyOf(old))
		delete(s.byID, id)
	}
	count := len(s.byID)
	s.mu.Unlock()

	if ok {
		metrics.UpdateStoreRecords(count)
	}
	return nil
}

// Count returns the total number of persons.
func (s *MemStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Close stops the background metrics goroutine.
func (s *MemStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// startMetricsUpdater periodically publishes the record count.
func (s *MemStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoreRecords(s.Count(ctx))
			}
		}
	}()
}

