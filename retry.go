package litepool

import (
	"context"
	"errors"
	"time"
)

type Retry struct {
	sleepDuration time.Duration
	RetryFunc     func() error
	numTries      int
}

func NewRetry(numTries int, sleepDuration time.Duration, retryFunc func() error) *Retry {
	return &Retry{
		sleepDuration: sleepDuration,
		RetryFunc:     retryFunc,
		numTries:      max(numTries, 1),
	}
}

// Do calls RetryFunc until it succeeds or numTries attempts have been made,
// sleeping between attempts. It returns the last error. A cancelled ctx
// stops the retries early; the returned error then wraps ctx.Err() too.
func (r *Retry) Do(ctx context.Context) error {
	var err error
	for i := 0; i < r.numTries; i++ {
		if err = r.RetryFunc(); err == nil {
			return nil
		}

		if i == r.numTries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(r.sleepDuration):
		}
	}

	return err
}
