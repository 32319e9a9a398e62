// Package retry provides a small retry-with-backoff combinator shared by the
// login-status classifier and the attachment-menu interaction code.
package retry

import (
	"context"
	"errors"
	"time"
)

// Fatal wraps an error to mark it non-retryable. Do aborts immediately when
// the operation returns a fatal error.
type Fatal struct {
	Err error
}

func (f Fatal) Error() string { return f.Err.Error() }
func (f Fatal) Unwrap() error { return f.Err }

// AsFatal marks err as non-retryable. A nil err stays nil.
func AsFatal(err error) error {
	if err == nil {
		return nil
	}
	return Fatal{Err: err}
}

// Policy controls attempt count and delay schedule.
type Policy struct {
	// Attempts is the total number of tries (minimum 1).
	Attempts int

	// BaseDelay is the delay after the first failed attempt. Zero means no
	// delay between attempts.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Zero means uncapped.
	MaxDelay time.Duration

	// Multiplier grows the delay after each attempt (default 2 when
	// BaseDelay is set).
	Multiplier float64
}

// Delay returns the sleep duration after the given zero-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, returns a Fatal error, exhausts the attempt
// budget, or ctx is done. The returned error is the last failure, unwrapped
// from Fatal when applicable.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var fatal Fatal
		if errors.As(err, &fatal) {
			return fatal.Err
		}
		last = err

		if attempt == attempts-1 {
			break
		}
		if d := p.Delay(attempt); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return last
}
