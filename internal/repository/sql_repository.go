package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liadmor/AdvPro-EX5/internal/database"
	"github.com/rs/zerolog"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLRepository struct {
	db      *sql.DB
	dialect database.Dialect
	logger  zerolog.Logger
}

func NewSQLRepository(db *sql.DB, dialect database.Dialect, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

func (r *SQLRepository) q(query string) string {
	return r.dialect.Rebind(query)
}

func (r *SQLRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

// withTx runs fn in a transaction and commits only if fn succeeds. The store
// holds a single connection, so fn must issue every statement through tx.
func (r *SQLRepository) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return storageError(op, fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error().Err(rbErr).Str("op", op).Msg("Failed to rollback transaction")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return storageError(op, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Ping checks the connection, giving up after pingTimeout.
func (r *SQLRepository) Ping(ctx context.Context, pingTimeout time.Duration) error {
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}
