package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/liadmor/AdvPro-EX5/internal/database"
	"github.com/liadmor/AdvPro-EX5/internal/models"
	"github.com/rs/zerolog"
)

type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) (int64, error)
	GetLatest(ctx context.Context, user models.User, exercise models.Exercise) (*models.Submission, error)
	GetBest(ctx context.Context, user models.User, exercise models.Exercise) (*models.Submission, error)
}

// Both statements take the username, the exercise id and a row limit, and
// return one row per graded question of the chosen submission ordered by
// QuestionId. Submissions without any QuestionGrade rows are never chosen.
const (
	latestSubmissionGradesQuery = `
		SELECT s.SubmissionId, g.QuestionId, g.Grade, s.SubmissionTime
		FROM Submission s
		JOIN QuestionGrade g ON g.SubmissionId = s.SubmissionId
		WHERE s.SubmissionId = (
			SELECT c.SubmissionId
			FROM Submission c
			JOIN "User" u ON u.UserId = c.UserId
			WHERE u.Username = ?
				AND c.ExerciseId = ?
				AND EXISTS (SELECT 1 FROM QuestionGrade e WHERE e.SubmissionId = c.SubmissionId)
			ORDER BY c.SubmissionTime DESC, c.SubmissionId DESC
			LIMIT 1
		)
		ORDER BY g.QuestionId
		LIMIT ?
	`

	// Candidates are ranked by total grade; ties go to the most recent.
	bestSubmissionGradesQuery = `
		SELECT s.SubmissionId, g.QuestionId, g.Grade, s.SubmissionTime
		FROM Submission s
		JOIN QuestionGrade g ON g.SubmissionId = s.SubmissionId
		WHERE s.SubmissionId = (
			SELECT c.SubmissionId
			FROM Submission c
			JOIN "User" u ON u.UserId = c.UserId
			JOIN QuestionGrade t ON t.SubmissionId = c.SubmissionId
			WHERE u.Username = ?
				AND c.ExerciseId = ?
			GROUP BY c.SubmissionId, c.SubmissionTime
			ORDER BY SUM(t.Grade) DESC, c.SubmissionTime DESC, c.SubmissionId DESC
			LIMIT 1
		)
		ORDER BY g.QuestionId
		LIMIT ?
	`
)

type submissionRepository struct {
	*SQLRepository
}

func NewSubmissionRepository(db *sql.DB, dialect database.Dialect, logger zerolog.Logger) SubmissionRepository {
	return &submissionRepository{
		SQLRepository: NewSQLRepository(db, dialect, logger),
	}
}

// Create resolves the submitting user, inserts the submission and one
// QuestionGrade per grade in a single transaction, and returns the
// submission id. An unassigned id is generated by the store and read back
// from the insert itself. An explicit id is used verbatim and later generated
// ids continue after it; a duplicate surfaces as a StorageError.
func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) (int64, error) {
	var id int64

	err := r.withTx(ctx, "store submission", func(tx *sql.Tx) error {
		userID, err := lookupUserID(ctx, tx, r.dialect, submission.User.Username)
		if err != nil {
			return err
		}

		submittedAt := submission.SubmissionTime.UnixMilli()
		if submission.HasAssignedID() {
			_, err = tx.ExecContext(ctx, r.q(`
				INSERT INTO Submission (SubmissionId, UserId, ExerciseId, SubmissionTime)
				VALUES (?, ?, ?, ?)
			`),
				submission.ID,
				userID,
				submission.Exercise.ID,
				submittedAt,
			)
			id = submission.ID
			if err == nil {
				err = r.syncSubmissionIdentity(ctx, tx)
			}
		} else {
			err = tx.QueryRowContext(ctx, r.q(`
				INSERT INTO Submission (UserId, ExerciseId, SubmissionTime)
				VALUES (?, ?, ?)
				RETURNING SubmissionId
			`),
				userID,
				submission.Exercise.ID,
				submittedAt,
			).Scan(&id)
		}
		if err != nil {
			return storageError("insert submission", err)
		}

		insertGrade := r.q(`
			INSERT INTO QuestionGrade (SubmissionId, QuestionId, Grade)
			VALUES (?, ?, ?)
		`)
		for questionID, grade := range submission.Grades {
			if _, err := tx.ExecContext(ctx, insertGrade, id, questionID, grade); err != nil {
				return storageError("insert question grade", err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Debug().
		Int64("submission_id", id).
		Str("username", submission.User.Username).
		Int("exercise_id", submission.Exercise.ID).
		Int("grades", len(submission.Grades)).
		Msg("Submission inserted")

	return id, nil
}

// submissionIdentitySyncQuery returns the statement that moves the generated
// id sequence past explicitly inserted ids, or "" where the store already
// assigns max(id)+1.
func submissionIdentitySyncQuery(dialect database.Dialect) string {
	if dialect != database.DialectPostgres {
		return ""
	}
	return `
		SELECT setval(
			pg_get_serial_sequence('submission', 'submissionid'),
			(SELECT MAX(SubmissionId) FROM Submission)
		)
	`
}

func (r *submissionRepository) syncSubmissionIdentity(ctx context.Context, tx *sql.Tx) error {
	query := submissionIdentitySyncQuery(r.dialect)
	if query == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, query)
	return err
}

func (r *submissionRepository) GetLatest(ctx context.Context, user models.User, exercise models.Exercise) (*models.Submission, error) {
	return r.getSubmission(ctx, "latest submission", latestSubmissionGradesQuery, user, exercise)
}

func (r *submissionRepository) GetBest(ctx context.Context, user models.User, exercise models.Exercise) (*models.Submission, error) {
	return r.getSubmission(ctx, "best submission", bestSubmissionGradesQuery, user, exercise)
}

// getSubmission runs one of the grade statements above and folds its rows
// into a Submission. No rows means no submission: nil, nil.
func (r *submissionRepository) getSubmission(ctx context.Context, op, query string, user models.User, exercise models.Exercise) (*models.Submission, error) {
	questionCount := len(exercise.Questions)

	rows, err := r.db.QueryContext(ctx, r.q(query), user.Username, exercise.ID, questionCount)
	if err != nil {
		return nil, storageError(op, err)
	}
	defer rows.Close()

	var (
		submission *models.Submission
		grades     = make([]float64, questionCount)
	)
	for rows.Next() {
		var (
			submissionID   int64
			questionID     int
			grade          sql.NullFloat64
			submissionTime int64
		)
		if err := rows.Scan(&submissionID, &questionID, &grade, &submissionTime); err != nil {
			return nil, storageError(op, err)
		}

		if submission == nil {
			submission = &models.Submission{
				ID:             submissionID,
				User:           user,
				Exercise:       exercise,
				SubmissionTime: time.UnixMilli(submissionTime),
				Grades:         grades,
			}
		}
		// Questions without a grade row keep 0.
		if questionID >= 0 && questionID < questionCount {
			grades[questionID] = grade.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(op, err)
	}

	return submission, nil
}
