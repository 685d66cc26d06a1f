package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/liadmor/AdvPro-EX5/internal/database"
	"github.com/liadmor/AdvPro-EX5/internal/models"
	"github.com/liadmor/AdvPro-EX5/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func openStore(t *testing.T, location string) *GradeStore {
	t.Helper()

	store, err := Open(context.Background(), location, WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func homework(id int) *models.Exercise {
	e := models.NewExercise(id, "Homework", time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC))
	e.AddQuestion("a", "first part", 10)
	e.AddQuestion("b", "second part", 10)
	e.AddQuestion("c", "third part", 5)
	return e
}

func TestOpenIsIdempotentAndKeepsData(t *testing.T) {
	ctx := context.Background()
	location := "jdbc:sqlite:" + filepath.Join(t.TempDir(), "smarticulous.db")

	store := openStore(t, location)
	assert.Equal(t, database.DialectSQLite, store.Dialect())
	_, err := store.AddExercise(ctx, homework(1))
	require.NoError(t, err)

	require.NoError(t, store.Reopen(ctx, location))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	again := openStore(t, location)
	exercises, err := again.LoadExercises(ctx)
	require.NoError(t, err)
	require.Len(t, exercises, 1)
	assert.Len(t, exercises[0].Questions, 3)
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")
	require.NoError(t, store.Close())

	_, err := store.LoadExercises(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.AddOrUpdateUser(ctx, models.NewUser("a", "", ""), "p")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Ping(ctx), ErrStoreClosed)
}

func TestPingOpenStore(t *testing.T) {
	store := openStore(t, ":memory:")
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenRejectsEmptyLocation(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.ErrorIs(t, err, database.ErrEmptyLocation)
}

func TestAddOrUpdateUserUpsert(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	id1, err := store.AddOrUpdateUser(ctx, models.NewUser("alice", "Alice", "Smith"), "first-pass")
	require.NoError(t, err)
	id2, err := store.AddOrUpdateUser(ctx, models.NewUser("alice", "Alice", "Jones"), "second-pass")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	ok, err := store.VerifyLogin(ctx, "alice", "second-pass")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.VerifyLogin(ctx, "alice", "first-pass")
	require.NoError(t, err)
	assert.False(t, ok)

	var rows int
	var stored string
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*), MAX(Password) FROM "User" WHERE Username = 'alice'`).Scan(&rows, &stored))
	assert.Equal(t, 1, rows)
	assert.NotEqual(t, "second-pass", stored)
}

func TestVerifyLogin(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	_, err := store.AddOrUpdateUser(ctx, models.NewUser("bob", "Bob", "Perez"), "Secret")
	require.NoError(t, err)

	cases := []struct {
		username, password string
		want               bool
	}{
		{"bob", "Secret", true},
		{"bob", "secret", false},
		{"Bob", "Secret", false},
		{"carol", "Secret", false},
		{"bob", "", false},
	}
	for _, tc := range cases {
		ok, err := store.VerifyLogin(ctx, tc.username, tc.password)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "%s/%s", tc.username, tc.password)
	}
}

func TestVerifyLoginWithLegacyPlaintextPassword(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	_, err := store.db.Exec(`INSERT INTO "User" (Username, Firstname, Lastname, Password) VALUES ('old', '', '', 'plain')`)
	require.NoError(t, err)

	ok, err := store.VerifyLogin(ctx, "old", "plain")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddOrUpdateUserRejectsEmptyUsername(t *testing.T) {
	store := openStore(t, ":memory:")

	_, err := store.AddOrUpdateUser(context.Background(), models.NewUser("", "No", "Name"), "p")
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestAddOrUpdateUserRejectsUnhashablePassword(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	_, err := store.AddOrUpdateUser(ctx, models.NewUser("hank", "Hank", "Moss"), strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrInvalidPassword)
	assert.NotErrorIs(t, err, ErrInvalidUser)

	ok, err := store.VerifyLogin(ctx, "hank", strings.Repeat("a", 73))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddExerciseDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	id, err := store.AddExercise(ctx, homework(12))
	require.NoError(t, err)
	assert.Equal(t, 12, id)

	dup := models.NewExercise(12, "Other", time.Now())
	dup.AddQuestion("x", "y", 1)
	_, err = store.AddExercise(ctx, dup)
	assert.ErrorIs(t, err, ErrExerciseExists)
	assert.False(t, IsStorageFailure(err))

	var questions int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM Question`).Scan(&questions))
	assert.Equal(t, 3, questions)
}

func TestLoadExercisesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	added := []*models.Exercise{homework(30), homework(2), homework(17)}
	added[1].Name = "Warmup"
	added[1].AddQuestion("d", "bonus", 3)
	for _, e := range added {
		_, err := store.AddExercise(ctx, e)
		require.NoError(t, err)
	}

	got, err := store.LoadExercises(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	want := []*models.Exercise{added[1], added[2], added[0]}
	for i, e := range want {
		assert.Equal(t, e.ID, got[i].ID)
		assert.Equal(t, e.Name, got[i].Name)
		assert.True(t, e.DueDate.Equal(got[i].DueDate))
		assert.Equal(t, e.Questions, got[i].Questions)
	}
	assert.Equal(t, 28, got[0].TotalPoints())
}

func TestStoreSubmissionUnknownUser(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	sub := models.NewSubmission(models.NewUser("ghost", "", ""), *homework(1), time.Now(), []float64{1, 2, 3})
	_, err := store.StoreSubmission(ctx, sub)
	assert.ErrorIs(t, err, ErrUnknownUser)

	var n int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM Submission`).Scan(&n))
	assert.Zero(t, n)
}

func TestStoreSubmissionDuplicateIDIsStorageFailure(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	user := models.NewUser("dana", "", "")
	_, err := store.AddOrUpdateUser(ctx, user, "p")
	require.NoError(t, err)

	sub := models.NewSubmission(user, *homework(1), time.Now(), []float64{1, 1, 1})
	sub.ID = 7
	id, err := store.StoreSubmission(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = store.StoreSubmission(ctx, sub)
	require.Error(t, err)
	assert.True(t, IsStorageFailure(err))
	assert.NotErrorIs(t, err, ErrUnknownUser)

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, repository.UniqueViolation, se.Code)
}

func TestLatestVersusBestSubmission(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	user := models.NewUser("erin", "Erin", "Lee")
	_, err := store.AddOrUpdateUser(ctx, user, "p")
	require.NoError(t, err)
	exercise := homework(4)
	_, err = store.AddExercise(ctx, exercise)
	require.NoError(t, err)

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	t1, t2, t3 := base, base.Add(time.Hour), base.Add(2*time.Hour)

	// Totals: 10, 25, 15.
	_, err = store.StoreSubmission(ctx, models.NewSubmission(user, *exercise, t1, []float64{5, 3, 2}))
	require.NoError(t, err)
	id2, err := store.StoreSubmission(ctx, models.NewSubmission(user, *exercise, t2, []float64{10, 10, 5}))
	require.NoError(t, err)
	id3, err := store.StoreSubmission(ctx, models.NewSubmission(user, *exercise, t3, []float64{5, 5, 5}))
	require.NoError(t, err)

	last, err := store.GetLastSubmission(ctx, user, *exercise)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, id3, last.ID)
	assert.True(t, t3.Equal(last.SubmissionTime))
	assert.Equal(t, 15.0, last.TotalGrade())

	best, err := store.GetBestSubmission(ctx, user, *exercise)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, id2, best.ID)
	assert.True(t, t2.Equal(best.SubmissionTime))
	assert.Equal(t, 25.0, best.TotalGrade())
	assert.Len(t, best.Grades, len(exercise.Questions))
}

func TestSubmissionWithMissingGradeRow(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	user := models.NewUser("ivy", "Ivy", "Park")
	_, err := store.AddOrUpdateUser(ctx, user, "p")
	require.NoError(t, err)
	exercise := homework(5)
	_, err = store.AddExercise(ctx, exercise)
	require.NoError(t, err)

	id, err := store.StoreSubmission(ctx, models.NewSubmission(user, *exercise, time.Now(), []float64{1, 2, 3}))
	require.NoError(t, err)
	_, err = store.db.Exec(`DELETE FROM QuestionGrade WHERE SubmissionId = ? AND QuestionId = 0`, id)
	require.NoError(t, err)

	last, err := store.GetLastSubmission(ctx, user, *exercise)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, []float64{0, 2, 3}, last.Grades)

	best, err := store.GetBestSubmission(ctx, user, *exercise)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, []float64{0, 2, 3}, best.Grades)
}

func TestNoSubmission(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, ":memory:")

	user := models.NewUser("fred", "", "")
	_, err := store.AddOrUpdateUser(ctx, user, "p")
	require.NoError(t, err)
	other := models.NewUser("gail", "", "")
	_, err = store.AddOrUpdateUser(ctx, other, "p")
	require.NoError(t, err)

	exercise := homework(1)
	_, err = store.StoreSubmission(ctx, models.NewSubmission(other, *exercise, time.Now(), []float64{1, 2, 3}))
	require.NoError(t, err)

	last, err := store.GetLastSubmission(ctx, user, *exercise)
	require.NoError(t, err)
	assert.Nil(t, last)

	best, err := store.GetBestSubmission(ctx, user, *exercise)
	require.NoError(t, err)
	assert.Nil(t, best)
}
