package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Migrator applies the embedded schema to an already open database. Every
// migration only creates missing tables and indexes.
type Migrator struct {
	migrate *migrate.Migrate
	source  source.Driver
	conn    *sql.Conn
}

func NewMigrator(ctx context.Context, db *sql.DB, dialect Dialect) (*Migrator, error) {
	src, err := iofs.New(migrations, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s migrations: %w", dialect, err)
	}

	var (
		driver migratedb.Driver
		conn   *sql.Conn
	)

	switch dialect {
	case DialectSQLite:
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case DialectPostgres:
		// WithInstance would pin a pool connection until the driver is closed,
		// and closing the driver closes db as well.
		conn, err = db.Conn(ctx)
		if err == nil {
			driver, err = migratepg.WithConnection(ctx, conn, &migratepg.Config{})
		}
	default:
		err = fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err != nil {
		src.Close()
		if conn != nil {
			conn.Close()
		}
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		src.Close()
		if conn != nil {
			conn.Close()
		}
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{migrate: m, source: src, conn: conn}, nil
}

func (m *Migrator) Up() error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Release frees the migration source and any dedicated connection without
// closing the shared *sql.DB, which migrate.Close would do.
func (m *Migrator) Release() error {
	err := m.source.Close()
	if m.conn != nil {
		if cerr := m.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// EnsureSchema creates any missing tables. Safe to call on every open.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	m, err := NewMigrator(ctx, db, dialect)
	if err != nil {
		return err
	}
	defer m.Release()

	return m.Up()
}
