package service

import (
	"errors"

	"github.com/liadmor/AdvPro-EX5/internal/repository"
)

// Business outcomes. Storage failures are reported as *StorageError instead.
var (
	ErrExerciseExists  = repository.ErrExerciseExists
	ErrUnknownUser     = errors.New("submission references unknown user")
	ErrInvalidUser     = errors.New("invalid user")
	ErrInvalidPassword = errors.New("invalid password")
	ErrStoreClosed     = errors.New("grade store is closed")
)

type StorageError = repository.StorageError

func IsStorageFailure(err error) bool {
	return repository.IsStorageError(err)
}
