package badger

import "errors"

var (
	// ErrBackendRequired indicates a repository was constructed without a backend.
	ErrBackendRequired = errors.New("badger backend is required")
)
