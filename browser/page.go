// Package browser drives a real Chrome instance for one attempt at a time.
package browser

import (
	"context"
	"fmt"
	"time"
)

// Page is the subset of browser capabilities the form driver and detector need.
// Selectors are CSS query selectors.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Present(ctx context.Context, selector string) (bool, error)
	Clickable(ctx context.Context, selector string) (bool, error)
	SetValue(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	ReadyState(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
}

// Session is a Page backed by a browser instance that must be closed.
// Close is safe to call more than once.
type Session interface {
	Page
	Close() error
}

// Opener starts fresh sessions.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// DocumentReady is satisfied once the document finished loading.
func DocumentReady(page Page) Condition {
	return func(ctx context.Context) (bool, error) {
		state, err := page.ReadyState(ctx)
		if err != nil {
			return false, err
		}
		return state == "complete", nil
	}
}

// ElementPresent is satisfied once selector matches at least one node.
func ElementPresent(page Page, selector string) Condition {
	return func(ctx context.Context) (bool, error) {
		return page.Present(ctx, selector)
	}
}

// ElementAbsent is satisfied once selector no longer matches anything.
func ElementAbsent(page Page, selector string) Condition {
	return func(ctx context.Context) (bool, error) {
		ok, err := page.Present(ctx, selector)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// ElementClickable is satisfied once selector is visible and enabled.
func ElementClickable(page Page, selector string) Condition {
	return func(ctx context.Context) (bool, error) {
		return page.Clickable(ctx, selector)
	}
}

// Navigate loads url and waits until the document is complete, all within timeout.
func Navigate(ctx context.Context, page Page, url string, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	navCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := page.Navigate(navCtx, url); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrNavigation{URL: url, Err: err}
	}

	res, err := WaitUntil(ctx, time.Until(deadline), interval, DocumentReady(page))
	if err != nil {
		return err
	}
	if res == TimedOut {
		return ErrNavigation{URL: url, Err: fmt.Errorf("document not ready after %s", timeout)}
	}
	return nil
}
