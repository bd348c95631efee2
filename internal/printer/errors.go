package printer

import "errors"

// Error kinds returned by engine operations. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrValidation         = errors.New("validation failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrConflict           = errors.New("version conflict")
)
