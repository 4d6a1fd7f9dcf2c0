package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/metrics"
)

const pingTimeout = 10 * time.Second

type dbPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// personRow maps person columns for pgx.RowToStructByName.
type personRow struct {
	PersonID      int64  `db:"person_id"`
	FirstName     string `db:"first_name"`
	LastName      string `db:"last_name"`
	EmailAddress  string `db:"email_address"`
	StreetAddress string `db:"street_address"`
	City          string `db:"city"`
	State         string `db:"state"`
	ZipCode       string `db:"zip_code"`
}

func (r personRow) person() model.Person {
	return model.Person{
		PersonID:      r.PersonID,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		EmailAddress:  r.EmailAddress,
		StreetAddress: r.StreetAddress,
		City:          r.City,
		State:         strings.TrimSpace(r.State),
		ZipCode:       strings.TrimSpace(r.ZipCode),
	}
}

// PostgresStore persists persons in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool dbPool
}

// OpenPostgres applies embedded migrations, then connects a pool to dsn.
// The connection is validated with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required: %w", ErrNoStorage)
	}
	if err := migratePostgres(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	metrics.UpdateStoreRecords(s.Count(ctx))
	return s, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// List implements Store.List.
func (s *PostgresStore) List(ctx context.Context) (out []model.Person, err error) {
	defer func(start time.Time) { observe(opList, start, err) }(time.Now())

	rows, err := s.pool.Query(ctx,
		`SELECT `+personColumns+` FROM person ORDER BY first_name, last_name, person_id`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[personRow])
	if err != nil {
		return nil, fmt.Errorf("collect persons: %w", err)
	}
	out = make([]model.Person, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.person())
	}
	return out, nil
}

// Create implements Store.Create.
func (s *PostgresStore) Create(ctx context.Context, p model.Person) (id int64, err error) {
	defer func(start time.Time) { observe(opCreate, start, err) }(time.Now())

	err = s.pool.QueryRow(ctx,
		`INSERT INTO person (first_name, last_name, email_address, street_address, city, state, zip_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING person_id`,
		p.FirstName, p.LastName, p.EmailAddress, p.StreetAddress, p.City, p.State, p.ZipCode,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}
	metrics.UpdateStoreRecords(s.Count(ctx))
	return id, nil
}

// Read implements Store.Read.
func (s *PostgresStore) Read(ctx context.Context, id int64) (p model.Person, err error) {
	defer func(start time.Time) { observe(opRead, start, err) }(time.Now())

	if err = checkID(id); err != nil {
		return model.Person{}, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+personColumns+` FROM person WHERE person_id = $1`, id)
	if err != nil {
		return model.Person{}, fmt.Errorf("read person: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[personRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Person{}, ErrNotFound
	}
	if err != nil {
		return model.Person{}, fmt.Errorf("read person: %w", err)
	}
	return rec.person(), nil
}

// Update implements Store.Update.
func (s *PostgresStore) Update(ctx context.Context, p model.Person) (err error) {
	defer func(start time.Time) { observe(opUpdate, start, err) }(time.Now())

	if err = checkID(p.PersonID); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE person SET first_name = $1, last_name = $2, email_address = $3, street_address = $4,
		 city = $5, state = $6, zip_code = $7 WHERE person_id = $8`,
		p.FirstName, p.LastName, p.EmailAddress, p.StreetAddress, p.City, p.State, p.ZipCode, p.PersonID)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Store.Delete.
func (s *PostgresStore) Delete(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { observe(opDelete, start, err) }(time.Now())

	if err = checkID(id); err != nil {
		return err
	}
	if _, err = s.pool.Exec(ctx, `DELETE FROM person WHERE person_id = $1`, id); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	metrics.UpdateStoreRecords(s.Count(ctx))
	return nil
}

// Count returns the number of rows, or 0 when the query fails.
func (s *PostgresStore) Count(ctx context.Context) int {
	var (
		n   int
		err error
	)
	defer func(start time.Time) { observe(opCount, start, err) }(time.Now())

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM person`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
