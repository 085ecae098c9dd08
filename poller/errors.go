package poller

import (
	"context"
	"errors"

	"github.com/aluiziolira/anemwatch/browser"
	"github.com/aluiziolira/anemwatch/config"
	"github.com/aluiziolira/anemwatch/detector"
)

// ErrorTypeLabel maps an attempt error onto its metric label.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var missing config.ErrMissingCredentials
	if errors.As(err, &missing) {
		return "missing_credentials"
	}
	var engine browser.ErrEngineUnavailable
	if errors.As(err, &engine) {
		return "engine_unavailable"
	}
	var nav browser.ErrNavigation
	if errors.As(err, &nav) {
		return "navigation"
	}
	var notFound browser.ErrElementNotFound
	if errors.As(err, &notFound) {
		return "element_not_found"
	}
	var indeterminate detector.ErrIndeterminate
	if errors.As(err, &indeterminate) {
		return "indeterminate"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "other"
}

// IsFatal reports whether err must stop the run instead of being retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var missing config.ErrMissingCredentials
	if errors.As(err, &missing) {
		return true
	}
	var engine browser.ErrEngineUnavailable
	return errors.As(err, &engine)
}
