package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrRepositoryRequired is returned when no job repository is provided.
	ErrRepositoryRequired = errors.New("job repository is required")

	// ErrHandlerRequired is returned when no job handler is provided.
	ErrHandlerRequired = errors.New("job handler is required")

	// ErrInvalidPoolSize is returned when pool size is not positive.
	ErrInvalidPoolSize = errors.New("pool size must be greater than 0")

	// ErrInvalidMaxAttempts is returned when the attempt cap is not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("queue already started")
)

// JobFailedError is returned by Handle.AwaitCompletion when a job ends in the failed state.
type JobFailedError struct {
	JobID    string
	Attempts int
	Err      error
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed after %d attempt(s): %v", e.JobID, e.Attempts, e.Err)
}

func (e *JobFailedError) Unwrap() error {
	return e.Err
}
