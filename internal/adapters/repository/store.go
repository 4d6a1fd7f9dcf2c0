// Package repository stores person records.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/metrics"
)

// Store provides read/write access to the person table.
type Store interface {
	// List returns every person ordered by first name, last name, then id.
	List(ctx context.Context) ([]model.Person, error)

	// Create inserts p and returns the assigned id. p.PersonID is ignored.
	Create(ctx context.Context, p model.Person) (int64, error)

	// Read returns the person with the given id.
	// Returns ErrNotFound if the id is unknown.
	Read(ctx context.Context, id int64) (model.Person, error)

	// Update replaces the stored fields of p.PersonID.
	// Returns ErrNotFound if the id is unknown.
	Update(ctx context.Context, p model.Person) error

	// Delete removes the person. Unknown ids are not an error.
	Delete(ctx context.Context, id int64) error

	// Count returns the number of stored persons.
	Count(ctx context.Context) int

	Close() error
}

// Operation names used as metric labels.
const (
	opList   = "list"
	opCreate = "create"
	opRead   = "read"
	opUpdate = "update"
	opDelete = "delete"
	opCount  = "count"
)

// observe records one store call in the metrics layer.
func observe(op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	metrics.RecordStoreOperation(op, outcome, float64(time.Since(start).Microseconds())/1000)
}

func checkID(id int64) error {
	if id < 1 {
		return ErrInvalidID
	}
	return nil
}
