package apperr

import "github.com/pkg/errors"

// Sentinel errors shared across services and handlers. Callers wrap them
// with context via errors.Wrap and check with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrIncomplete       = errors.New("upload incomplete")
	ErrValidationFailed = errors.New("validation failed")
	ErrStorageFailure   = errors.New("storage failure")
	ErrConflict         = errors.New("already exists")
)
