package repository

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx" for the migration connection
)

//go:embed migrations
var migrationsFS embed.FS

const (
	sqliteMigrations   = "migrations/sqlite"
	postgresMigrations = "migrations/postgres"
)

// migrateSQLite applies the embedded schema on a dedicated connection.
// The migrate driver closes its *sql.DB, so the store's handle is not shared.
func migrateSQLite(dsn string) error {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite for migration: %w", err)
	}
	drv, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlite migration driver: %w", err)
	}
	return migrateUp(sqliteMigrations, "sqlite", drv)
}

// migratePostgres applies the embedded schema through database/sql and pgx.
func migratePostgres(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open postgres for migration: %w", err)
	}
	drv, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("postgres migration driver: %w", err)
	}
	return migrateUp(postgresMigrations, "pgx5", drv)
}

func migrateUp(dir, dbName string, drv database.Driver) (err error) {
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		_ = drv.Close()
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dbName, drv)
	if err != nil {
		_ = src.Close()
		_ = drv.Close()
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		sErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(sErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
