package queue

import "time"

const maxBackoff = 15 * time.Minute

// NextBackoff returns the delay before the next attempt of a failed job.
// attempt is 1-indexed: the attempt that just failed. Growth is exponential
// from the priority's initial backoff, capped at maxBackoff.
func NextBackoff(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// fatalError marks a job failure that must not be retried: malformed
// payloads, vanished records, permanent recipient-format failures.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps err so the queue fails the job immediately instead of
// consuming the remaining retry budget.
func Fatal(err error) error {
	return &fatalError{err: err}
}

func IsFatal(err error) bool {
	for err != nil {
		if _, ok := err.(*fatalError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
