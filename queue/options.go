package queue

import (
	"errors"
	"log/slog"
	"time"
)

const (
	DefaultPoolSize        = 4
	DefaultMaxAttempts     = 3
	DefaultBaseBackoff     = time.Second
	DefaultMaxBackoff      = 30 * time.Second
	DefaultPollInterval    = 250 * time.Millisecond
	DefaultShutdownTimeout = 30 * time.Second
)

// Option configures a Queue.
type Option func(*Queue) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		q.logger = logger
		return nil
	}
}

// WithPoolSize sets the number of jobs executed concurrently.
func WithPoolSize(size int) Option {
	return func(q *Queue) error {
		if size <= 0 {
			return ErrInvalidPoolSize
		}
		q.poolSize = size
		return nil
	}
}

// WithMaxAttempts sets the total number of attempts before a job fails.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		q.maxAttempts = n
		return nil
	}
}

// WithBackoff sets the retry delay: base * 2^(attempt-1), capped at max.
func WithBackoff(base, max time.Duration) Option {
	return func(q *Queue) error {
		if base <= 0 || max < base {
			return errors.New("backoff requires 0 < base <= max")
		}
		q.baseBackoff = base
		q.maxBackoff = max
		return nil
	}
}

// WithPollInterval sets how often the dispatcher looks for ready jobs
// and how often waiters re-read job state.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		q.pollInterval = d
		return nil
	}
}

// WithShutdownTimeout bounds how long Close waits for in-flight jobs.
func WithShutdownTimeout(d time.Duration) Option {
	return func(q *Queue) error {
		if d < 0 {
			return errors.New("shutdown timeout cannot be negative")
		}
		q.shutdownTimeout = d
		return nil
	}
}
