package cache

import (
	"context"
	"errors"
	"time"
)

// Upstream failures shared by every read-through fetcher.
var (
	ErrNotFound = errors.New("not found")
	ErrNetwork  = errors.New("network error")
)

// MaxRetryDelay caps a single wait between attempts, including waits the
// server asked for.
const MaxRetryDelay = 30 * time.Second

// RetryableError marks a fetch failure as transient. After, when set, is the
// wait the upstream asked for (a Retry-After header).
type RetryableError struct {
	Err   error
	After time.Duration
}

// Retryable marks err as transient. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// RetryAfter marks err as transient with a server-requested wait.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, After: after}
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err carries a [RetryableError].
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Retry calls fn up to attempts times. The wait starts at delay and doubles
// after each transient failure, except that a longer server-requested wait
// wins. No wait exceeds [MaxRetryDelay]. Permanent errors return at once.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) {
			return err
		}
		if i == attempts-1 {
			break
		}
		wait := min(max(delay, re.After), MaxRetryDelay)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
	return err
}

// RetryWithBackoff is [Retry] with three attempts starting at one second,
// used for registry and model calls.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return Retry(ctx, 3, time.Second, fn)
}
