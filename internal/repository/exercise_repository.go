package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/liadmor/AdvPro-EX5/internal/database"
	"github.com/liadmor/AdvPro-EX5/internal/models"
	"github.com/rs/zerolog"
)

type ExerciseRepository interface {
	Create(ctx context.Context, exercise *models.Exercise) error
	GetAll(ctx context.Context) ([]models.Exercise, error)
}

type exerciseRepository struct {
	*SQLRepository
}

func NewExerciseRepository(db *sql.DB, dialect database.Dialect, logger zerolog.Logger) ExerciseRepository {
	return &exerciseRepository{
		SQLRepository: NewSQLRepository(db, dialect, logger),
	}
}

// Create stores the exercise and its questions in one transaction, giving
// question i the QuestionId i. It returns ErrExerciseExists without touching
// the Question table if the id is taken.
func (r *exerciseRepository) Create(ctx context.Context, exercise *models.Exercise) error {
	return r.withTx(ctx, "create exercise", func(tx *sql.Tx) error {
		exists, err := r.exists(ctx, tx, exercise.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrExerciseExists
		}

		_, err = tx.ExecContext(ctx, r.q(`
			INSERT INTO Exercise (ExerciseId, Name, DueDate)
			VALUES (?, ?, ?)
		`),
			exercise.ID,
			exercise.Name,
			exercise.DueDate.UnixMilli(),
		)
		if err != nil {
			return storageError("insert exercise", err)
		}

		insertQuestion := r.q(`
			INSERT INTO Question (ExerciseId, QuestionId, Points, Name, "Desc")
			VALUES (?, ?, ?, ?, ?)
		`)
		for i := range exercise.Questions {
			question := &exercise.Questions[i]
			question.ID = i

			_, err := tx.ExecContext(ctx, insertQuestion,
				exercise.ID,
				question.ID,
				question.Points,
				question.Name,
				question.Desc,
			)
			if err != nil {
				return storageError("insert question", err)
			}
		}

		r.logger.Debug().
			Int("exercise_id", exercise.ID).
			Int("questions", len(exercise.Questions)).
			Msg("Exercise inserted")

		return nil
	})
}

// GetAll returns every exercise ordered by id, each with its questions
// ordered by question id.
func (r *exerciseRepository) GetAll(ctx context.Context) ([]models.Exercise, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ExerciseId, Name, DueDate
		FROM Exercise
		ORDER BY ExerciseId
	`)
	if err != nil {
		return nil, storageError("load exercises", err)
	}

	exercises := []models.Exercise{}
	index := make(map[int]int)
	for rows.Next() {
		var (
			exercise models.Exercise
			name     sql.NullString
			dueDate  sql.NullInt64
		)
		if err := rows.Scan(&exercise.ID, &name, &dueDate); err != nil {
			rows.Close()
			return nil, storageError("scan exercise", err)
		}
		exercise.Name = name.String
		exercise.DueDate = time.UnixMilli(dueDate.Int64)
		exercise.Questions = []models.Question{}

		index[exercise.ID] = len(exercises)
		exercises = append(exercises, exercise)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageError("load exercises", err)
	}
	rows.Close()

	// Questions are read only after the exercise cursor is released: the
	// store has a single connection.
	qrows, err := r.db.QueryContext(ctx, `
		SELECT ExerciseId, QuestionId, Points, Name, "Desc"
		FROM Question
		ORDER BY ExerciseId, QuestionId
	`)
	if err != nil {
		return nil, storageError("load questions", err)
	}
	defer qrows.Close()

	for qrows.Next() {
		var (
			exerciseID int
			question   models.Question
			points     sql.NullInt64
			name, desc sql.NullString
		)
		if err := qrows.Scan(&exerciseID, &question.ID, &points, &name, &desc); err != nil {
			return nil, storageError("scan question", err)
		}
		question.Points = int(points.Int64)
		question.Name = name.String
		question.Desc = desc.String

		i, ok := index[exerciseID]
		if !ok {
			r.logger.Warn().Int("exercise_id", exerciseID).Msg("Question without exercise")
			continue
		}
		exercises[i].Questions = append(exercises[i].Questions, question)
	}
	if err := qrows.Err(); err != nil {
		return nil, storageError("load questions", err)
	}

	return exercises, nil
}

func (r *exerciseRepository) exists(ctx context.Context, db DBTX, id int) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, r.q(`SELECT EXISTS(SELECT 1 FROM Exercise WHERE ExerciseId = ?)`), id).Scan(&exists)
	if err != nil {
		return false, storageError("exercise exists", err)
	}
	return exists, nil
}
