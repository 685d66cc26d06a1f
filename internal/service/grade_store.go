package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/liadmor/AdvPro-EX5/internal/database"
	"github.com/liadmor/AdvPro-EX5/internal/models"
	"github.com/liadmor/AdvPro-EX5/internal/repository"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type options struct {
	logger      zerolog.Logger
	bcryptCost  int
	pingTimeout time.Duration
}

type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

func WithPingTimeout(timeout time.Duration) Option {
	return func(o *options) { o.pingTimeout = timeout }
}

// GradeStore persists users, exercises and graded submissions behind a
// single database connection. Open and Close must not race with other calls.
type GradeStore struct {
	db      *sql.DB
	dialect database.Dialect
	base    *repository.SQLRepository

	users       repository.UserRepository
	exercises   repository.ExerciseRepository
	submissions repository.SubmissionRepository

	validate *validator.Validate
	opts     options
	logger   zerolog.Logger
}

// Open connects to location and creates any missing tables. Existing tables
// and rows are left untouched.
func Open(ctx context.Context, location string, opts ...Option) (*GradeStore, error) {
	o := options{
		logger:      zerolog.Nop(),
		bcryptCost:  bcrypt.DefaultCost,
		pingTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &GradeStore{
		validate: validator.New(),
		opts:     o,
		logger:   o.logger,
	}
	if err := s.open(ctx, location); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GradeStore) open(ctx context.Context, location string) error {
	loc, err := database.ParseLocation(location)
	if err != nil {
		return fmt.Errorf("failed to parse location: %w", err)
	}

	db, err := database.Open(ctx, loc, s.opts.pingTimeout)
	if err != nil {
		return err
	}

	if err := database.EnsureSchema(ctx, db, loc.Dialect); err != nil {
		db.Close()
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	s.db = db
	s.dialect = loc.Dialect
	s.base = repository.NewSQLRepository(db, loc.Dialect, s.logger)
	s.users = repository.NewUserRepository(db, loc.Dialect, s.logger)
	s.exercises = repository.NewExerciseRepository(db, loc.Dialect, s.logger)
	s.submissions = repository.NewSubmissionRepository(db, loc.Dialect, s.logger)

	s.logger.Info().Str("dialect", string(loc.Dialect)).Msg("Grade store opened")
	return nil
}

// Reopen closes the current connection, if any, and opens location.
func (s *GradeStore) Reopen(ctx context.Context, location string) error {
	if err := s.Close(); err != nil {
		return err
	}
	return s.open(ctx, location)
}

// Close releases the connection. Closing a closed store is a no-op.
func (s *GradeStore) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.base.Close()
	s.db, s.base = nil, nil
	s.users, s.exercises, s.submissions = nil, nil, nil

	if err != nil {
		return fmt.Errorf("failed to close grade store: %w", err)
	}
	s.logger.Info().Msg("Grade store closed")
	return nil
}

func (s *GradeStore) Dialect() database.Dialect {
	return s.dialect
}

// Ping checks the connection, giving up after the configured ping timeout.
func (s *GradeStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	return s.base.Ping(ctx, s.opts.pingTimeout)
}

// AddOrUpdateUser inserts the user, or overwrites the name and password of
// the existing user with the same username. It returns the user's id, which
// does not change on update. Only a bcrypt hash of password is stored; a
// password bcrypt cannot hash, such as one over 72 bytes, is rejected with
// ErrInvalidPassword.
func (s *GradeStore) AddOrUpdateUser(ctx context.Context, user models.User, password string) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}
	if err := s.validate.Struct(user); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}

	id, err := s.users.Upsert(ctx, &user, string(hash))
	if err != nil {
		return 0, fmt.Errorf("failed to add or update user: %w", err)
	}

	s.logger.Info().
		Int64("user_id", id).
		Str("username", user.Username).
		Msg("User saved")

	return id, nil
}

// VerifyLogin reports whether username exists and password matches its
// stored hash.
func (s *GradeStore) VerifyLogin(ctx context.Context, username, password string) (bool, error) {
	if s.db == nil {
		return false, ErrStoreClosed
	}

	hash, ok, err := s.users.GetPasswordHash(ctx, username)
	if err != nil {
		return false, fmt.Errorf("failed to verify login: %w", err)
	}
	if !ok {
		return false, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		s.logger.Warn().Err(err).Str("username", username).Msg("Stored password is not a valid hash")
		return false, nil
	}
}

// AddExercise stores the exercise with its questions and returns its id.
// It returns ErrExerciseExists if the id is already taken. Questions are
// numbered from 0 in slice order; the exercise's Question ids are updated
// to match.
func (s *GradeStore) AddExercise(ctx context.Context, exercise *models.Exercise) (int, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}

	if err := s.exercises.Create(ctx, exercise); err != nil {
		if errors.Is(err, repository.ErrExerciseExists) {
			return 0, ErrExerciseExists
		}
		return 0, fmt.Errorf("failed to add exercise: %w", err)
	}

	s.logger.Info().
		Int("exercise_id", exercise.ID).
		Str("name", exercise.Name).
		Int("questions", len(exercise.Questions)).
		Msg("Exercise added")

	return exercise.ID, nil
}

// LoadExercises returns all exercises ordered by id, with their questions.
func (s *GradeStore) LoadExercises(ctx context.Context) ([]models.Exercise, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	exercises, err := s.exercises.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load exercises: %w", err)
	}
	return exercises, nil
}

// StoreSubmission stores the submission and its grades and returns its id.
// If submission.ID is models.UnassignedID the store generates one. It returns
// ErrUnknownUser, storing nothing, if the submitting user does not exist.
func (s *GradeStore) StoreSubmission(ctx context.Context, submission *models.Submission) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}

	id, err := s.submissions.Create(ctx, submission)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrUnknownUser
		}
		return 0, fmt.Errorf("failed to store submission: %w", err)
	}

	s.logger.Info().
		Int64("submission_id", id).
		Str("username", submission.User.Username).
		Int("exercise_id", submission.Exercise.ID).
		Msg("Submission stored")

	return id, nil
}

// GetLastSubmission returns the user's most recent graded submission for the
// exercise, or nil if there is none.
func (s *GradeStore) GetLastSubmission(ctx context.Context, user models.User, exercise models.Exercise) (*models.Submission, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	submission, err := s.submissions.GetLatest(ctx, user, exercise)
	if err != nil {
		return nil, fmt.Errorf("failed to get last submission: %w", err)
	}
	return submission, nil
}

// GetBestSubmission returns the user's graded submission with the highest
// total grade for the exercise, the most recent one among equals, or nil if
// there is none.
func (s *GradeStore) GetBestSubmission(ctx context.Context, user models.User, exercise models.Exercise) (*models.Submission, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	submission, err := s.submissions.GetBest(ctx, user, exercise)
	if err != nil {
		return nil, fmt.Errorf("failed to get best submission: %w", err)
	}
	return submission, nil
}
