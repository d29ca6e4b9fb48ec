package automation

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateName       = errors.New("instance name already exists")
	ErrNotFound            = errors.New("instance not found")
	ErrInvalidInstance     = errors.New("invalid instance")
	ErrInstanceActive      = errors.New("instance is not stopped")
	ErrInvalidRegion       = errors.New("region center outside display bounds")
	ErrExhaustedRetries    = errors.New("action failed after all attempts")
	ErrGracefulStopTimeout = errors.New("scheduling unit did not stop in time")
	ErrPersistence         = errors.New("persist instances")
)

// NoRetry marks a device error as permanent so the executor stops retrying.
//
//	return automation.NoRetry(fmt.Errorf("display closed: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }

// ExhaustedError is returned when every attempt of an action failed.
// It matches ErrExhaustedRetries and unwraps to the last attempt's error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v (%d attempts): %v", ErrExhaustedRetries, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhaustedRetries }
func (e *ExhaustedError) Unwrap() error         { return e.Last }
