package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/liadmor/AdvPro-EX5/internal/database"
	"github.com/liadmor/AdvPro-EX5/internal/models"
	"github.com/rs/zerolog"
)

type UserRepository interface {
	Upsert(ctx context.Context, user *models.User, passwordHash string) (int64, error)
	GetPasswordHash(ctx context.Context, username string) (string, bool, error)
}

type userRepository struct {
	*SQLRepository
}

func NewUserRepository(db *sql.DB, dialect database.Dialect, logger zerolog.Logger) UserRepository {
	return &userRepository{
		SQLRepository: NewSQLRepository(db, dialect, logger),
	}
}

// Upsert inserts the user or overwrites name and password of the row with
// the same username. The row keeps its id on update.
func (r *userRepository) Upsert(ctx context.Context, user *models.User, passwordHash string) (int64, error) {
	query := `
		INSERT INTO "User" (Username, Firstname, Lastname, Password)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (Username) DO UPDATE SET
			Firstname = excluded.Firstname,
			Lastname = excluded.Lastname,
			Password = excluded.Password
		RETURNING UserId
	`

	var id int64
	err := r.db.QueryRowContext(ctx, r.q(query),
		user.Username,
		user.Firstname,
		user.Lastname,
		passwordHash,
	).Scan(&id)
	if err != nil {
		return 0, storageError("upsert user", err)
	}

	r.logger.Debug().Str("username", user.Username).Int64("user_id", id).Msg("User upserted")
	return id, nil
}

// GetPasswordHash returns the stored hash and whether the user exists.
func (r *userRepository) GetPasswordHash(ctx context.Context, username string) (string, bool, error) {
	query := `SELECT Password FROM "User" WHERE Username = ?`

	var hash sql.NullString
	err := r.db.QueryRowContext(ctx, r.q(query), username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageError("get password", err)
	}

	return hash.String, true, nil
}

func lookupUserID(ctx context.Context, db DBTX, dialect database.Dialect, username string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, dialect.Rebind(`SELECT UserId FROM "User" WHERE Username = ?`), username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, storageError("lookup user", err)
	}
	return id, nil
}
