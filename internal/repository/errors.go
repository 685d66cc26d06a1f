package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrExerciseExists = errors.New("exercise already exists")
	ErrUserNotFound   = errors.New("user not found")
)

// Code is a driver-independent classification of a storage failure.
type Code int

const (
	Other Code = iota
	UniqueViolation
	NotNullViolation
	ConstraintViolation
	Canceled
)

func (c Code) String() string {
	switch c {
	case UniqueViolation:
		return "unique_violation"
	case NotNullViolation:
		return "not_null_violation"
	case ConstraintViolation:
		return "constraint_violation"
	case Canceled:
		return "canceled"
	default:
		return "other"
	}
}

// StorageError reports that a statement could not be executed, as opposed to
// a statement that ran and found nothing.
type StorageError struct {
	Op   string
	Code Code
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Code: classify(err), Err: err}
}

func classify(err error) Code {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return UniqueViolation
		case "not_null_violation":
			return NotNullViolation
		}
		if pqErr.Code.Class() == "23" {
			return ConstraintViolation
		}
		return Other
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return UniqueViolation
		case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return NotNullViolation
		}
		if liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			// Without extended result codes only the message tells them apart.
			if strings.Contains(liteErr.Error(), "UNIQUE constraint failed") {
				return UniqueViolation
			}
			return ConstraintViolation
		}
	}

	return Other
}

// ErrCode reports the classification of err, or Other if err is not a StorageError.
func ErrCode(err error) Code {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code
	}
	return Other
}

func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func IsUniqueViolation(err error) bool {
	return ErrCode(err) == UniqueViolation
}

func IsConstraintViolation(err error) bool {
	switch ErrCode(err) {
	case UniqueViolation, NotNullViolation, ConstraintViolation:
		return true
	}
	return false
}
