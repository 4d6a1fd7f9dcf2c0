// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	changequeue "github.com/okian/crudapp/internal/adapters/mq/queue"
	workerpool "github.com/okian/crudapp/internal/adapters/mq/worker"
	"github.com/okian/crudapp/internal/adapters/repository"
	"github.com/okian/crudapp/internal/domain/dedupe"
	"github.com/okian/crudapp/internal/domain/journal"
	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/logger"
	"github.com/okian/crudapp/pkg/metrics"
	"github.com/okian/crudapp/pkg/requestid"
)

const (
	defaultWorkerCount = 2
	defaultQueueSize   = 1024
	defaultJournalSize = 1000
	defaultDedupeSize  = 10_000
)

// Lifecycle errors.
var (
	// ErrNotStarted is returned by person operations before Start and after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrStopped is returned by Start once the service has been stopped.
	ErrStopped = errors.New("service stopped")
)

// Service implements the API dependencies for the person directory.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	keys       dedupe.Keys
	changes    *changequeue.InMemoryQueue
	journal    *journal.Journal
	workerPool *workerpool.Pool

	// Configuration
	workerCount int
	queueSize   int
	journalSize int
	dedupeSize  int

	// State
	started bool
	stopped bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the person store. The service owns it and closes it on Stop.
// Without this option Start creates an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of journal workers. With more than one
// worker the journal order follows worker scheduling; one worker keeps
// publish order.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the change queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithJournalSize sets how many changes the journal keeps.
func WithJournalSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.journalSize = size
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		journalSize: defaultJournalSize,
		dedupeSize:  defaultDedupeSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
// A stopped service cannot be started again.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting person service...")

	if s.store == nil {
		s.store = repository.NewMemStore(ctx)
		s.logger.Info(ctx, "using in-memory store")
	}
	s.keys = dedupe.NewInMemoryKeys(dedupe.WithMaxSize(s.dedupeSize))
	s.changes = changequeue.NewInMemoryQueue(changequeue.WithCapacity(s.queueSize))
	s.journal = journal.New(s.journalSize)

	// Workers outlive the start context; Stop drains and ends them.
	s.workerPool = workerpool.NewPool(s.workerCount, s.changes, s.journal)
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "person service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("journalSize", s.journalSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the change queue into the journal and closes the store.
// The journal stays readable afterwards.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping person service...")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.store = nil
	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "person service stopped", logger.Int64("journaled", s.workerPool.Processed()))
	return errors.Join(errs...)
}

// running returns the store while the service is started.
func (s *Service) running() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// ListPersons returns every person in list order.
func (s *Service) ListPersons(ctx context.Context) ([]model.Person, error) {
	store, err := s.running()
	if err != nil {
		return nil, err
	}
	return store.List(ctx)
}

// GetPerson returns one person or repository.ErrNotFound.
func (s *Service) GetPerson(ctx context.Context, id int64) (model.Person, error) {
	store, err := s.running()
	if err != nil {
		return model.Person{}, err
	}
	return store.Read(ctx, id)
}

// CreatePerson validates and stores p. With a non-empty key, a repeat of an
// earlier successful create returns that person and true instead of
// inserting again. A failed create releases the key.
func (s *Service) CreatePerson(ctx context.Context, p model.Person, key string) (model.Person, bool, error) {
	store, err := s.running()
	if err != nil {
		return model.Person{}, false, err
	}

	if key != "" {
		state, id, err := s.keys.Claim(ctx, key)
		if err != nil {
			return model.Person{}, false, err
		}
		if state == dedupe.Done {
			metrics.RecordDuplicateCreate()
			s.logger.Debug(ctx, "duplicate create", logger.String("key", key), logger.Int64("person_id", id))
			existing, err := store.Read(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				// deleted since; report the id that was created
				return model.Person{PersonID: id}, true, nil
			}
			return existing, true, err
		}
	}

	created, err := s.create(ctx, store, p)
	if key != "" {
		if err != nil {
			s.keys.Release(ctx, key)
		} else {
			s.keys.Complete(ctx, key, created.PersonID)
		}
	}
	if err != nil {
		return model.Person{}, false, err
	}

	s.publish(ctx, model.ChangeCreated, created)
	return created, false, nil
}

func (s *Service) create(ctx context.Context, store repository.Store, p model.Person) (model.Person, error) {
	p.Normalize()
	if errs := p.Validate(); len(errs) > 0 {
		return model.Person{}, &model.ValidationError{Errors: errs}
	}
	id, err := store.Create(ctx, p)
	if err != nil {
		return model.Person{}, err
	}
	p.PersonID = id
	return p, nil
}

// UpdatePerson validates p and replaces the stored record with the same id.
func (s *Service) UpdatePerson(ctx context.Context, p model.Person) (model.Person, error) {
	store, err := s.running()
	if err != nil {
		return model.Person{}, err
	}
	p.Normalize()
	if errs := p.Validate(); len(errs) > 0 {
		return model.Person{}, &model.ValidationError{Errors: errs}
	}
	if err := store.Update(ctx, p); err != nil {
		return model.Person{}, err
	}
	s.publish(ctx, model.ChangeUpdated, p)
	return p, nil
}

// DeletePerson removes a person. A missing id is not an error and
// publishes nothing.
func (s *Service) DeletePerson(ctx context.Context, id int64) error {
	store, err := s.running()
	if err != nil {
		return err
	}
	p, err := store.Read(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	if err := store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, model.ChangeDeleted, p)
	return nil
}

// RecentChanges returns up to n journaled changes, last journaled first.
func (s *Service) RecentChanges(_ context.Context, n int) []model.Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.journal == nil {
		return []model.Change{}
	}
	return s.journal.Recent(n)
}

// publish hands a change to the journal workers without blocking.
func (s *Service) publish(ctx context.Context, kind model.ChangeKind, p model.Person) {
	c := model.Change{
		Kind:      kind,
		PersonID:  p.PersonID,
		Person:    p,
		RequestID: requestid.From(ctx),
		At:        time.Now().UTC(),
	}
	if err := s.changes.Enqueue(ctx, c); err != nil {
		s.logger.Warn(ctx, "change dropped",
			logger.String("kind", string(kind)),
			logger.Int64("person_id", p.PersonID),
			logger.Error(err),
		)
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"journalSize": s.journalSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.changes.Len(ctx)
		persons := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["totalPersons"] = persons
		stats["journalLength"] = s.journal.Len()
		stats["journalTotal"] = s.journal.Total()
		stats["idempotencyKeys"] = s.keys.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateStoreRecords(persons)
	}
	return stats
}
