package browser

import (
	"context"
	"time"
)

// DefaultPollInterval is used when a wait is given a non-positive interval.
const DefaultPollInterval = 250 * time.Millisecond

// WaitResult is the outcome of a bounded wait.
type WaitResult int

const (
	TimedOut WaitResult = iota
	Found
)

func (r WaitResult) String() string {
	if r == Found {
		return "found"
	}
	return "timed_out"
}

// Condition is one probe of page state. An error counts as "not yet".
type Condition func(ctx context.Context) (bool, error)

// WaitUntil polls cond until it holds or timeout elapses. The returned error is
// non-nil only when ctx itself ends.
func WaitUntil(ctx context.Context, timeout, interval time.Duration, cond Condition) (WaitResult, error) {
	idx, err := WaitFirst(ctx, timeout, interval, cond)
	if err != nil {
		return TimedOut, err
	}
	if idx < 0 {
		return TimedOut, nil
	}
	return Found, nil
}

// WaitFirst polls every condition in order on each tick and returns the index
// of the first one that holds, or -1 when timeout elapses first.
func WaitFirst(ctx context.Context, timeout, interval time.Duration, conds ...Condition) (int, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	if timeout <= 0 {
		return -1, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for i, cond := range conds {
			if ok, err := cond(waitCtx); err == nil && ok {
				return i, nil
			}
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return -1, err
			}
			return -1, nil
		case <-ticker.C:
		}
	}
}
