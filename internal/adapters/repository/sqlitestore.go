package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/metrics"
	_ "modernc.org/sqlite" // database/sql driver "sqlite"
)

const personColumns = `person_id, first_name, last_name, email_address, street_address, city, state, zip_code`

// SQLiteStore persists persons in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required: %w", ErrNoStorage)
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	if err := migrateSQLite(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db}
	metrics.UpdateStoreRecords(s.Count(ctx))
	return s, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(r rowScanner) (model.Person, error) {
	var p model.Person
	err := r.Scan(&p.PersonID, &p.FirstName, &p.LastName, &p.EmailAddress,
		&p.StreetAddress, &p.City, &p.State, &p.ZipCode)
	return p, err
}

// List implements Store.List.
func (s *SQLiteStore) List(ctx context.Context) (out []model.Person, err error) {
	defer func(start time.Time) { observe(opList, start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+personColumns+` FROM person ORDER BY first_name, last_name, person_id`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	out = make([]model.Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return out, nil
}

// Create implements Store.Create.
func (s *SQLiteStore) Create(ctx context.Context, p model.Person) (id int64, err error) {
	defer func(start time.Time) { observe(opCreate, start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO person (first_name, last_name, email_address, street_address, city, state, zip_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.FirstName, p.LastName, p.EmailAddress, p.StreetAddress, p.City, p.State, p.ZipCode)
	if err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert person id: %w", err)
	}
	metrics.UpdateStoreRecords(s.Count(ctx))
	return id, nil
}

// Read implements Store.Read.
func (s *SQLiteStore) Read(ctx context.Context, id int64) (p model.Person, err error) {
	defer func(start time.Time) { observe(opRead, start, err) }(time.Now())

	if err = checkID(id); err != nil {
		return model.Person{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+personColumns+` FROM person WHERE person_id = ?`, id)
	p, err = scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Person{}, ErrNotFound
	}
	if err != nil {
		return model.Person{}, fmt.Errorf("read person: %w", err)
	}
	return p, nil
}

// Update implements Store.Update.
func (s *SQLiteStore) Update(ctx context.Context, p model.Person) (err error) {
	defer func(start time.Time) { observe(opUpdate, start, err) }(time.Now())

	if err = checkID(p.PersonID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE person SET first_name = ?, last_name = ?, email_address = ?, street_address = ?,
		 city = ?, state = ?, zip_code = ? WHERE person_id = ?`,
		p.FirstName, p.LastName, p.EmailAddress, p.StreetAddress, p.City, p.State, p.ZipCode, p.PersonID)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Store.Delete.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { observe(opDelete, start, err) }(time.Now())

	if err = checkID(id); err != nil {
		return err
	}
	if _, err = s.db.ExecContext(ctx, `DELETE FROM person WHERE person_id = ?`, id); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	metrics.UpdateStoreRecords(s.Count(ctx))
	return nil
}

// Count returns the number of rows, or 0 when the query fails.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var (
		n   int
		err error
	)
	defer func(start time.Time) { observe(opCount, start, err) }(time.Now())

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM person`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
