package browser

import (
	"fmt"
)

// ErrNavigation indicates the form page failed to load in time.
type ErrNavigation struct {
	URL string
	Err error
}

func (e ErrNavigation) Error() string {
	return fmt.Errorf("navigation: %s: %w", e.URL, e.Err).Error()
}

func (e ErrNavigation) Unwrap() error {
	return e.Err
}

// ErrElementNotFound indicates an element never became usable within its wait.
type ErrElementNotFound struct {
	Selector string
	Err      error
}

func (e ErrElementNotFound) Error() string {
	return fmt.Errorf("element_not_found: %s: %w", e.Selector, e.Err).Error()
}

func (e ErrElementNotFound) Unwrap() error {
	return e.Err
}

// ErrEngineUnavailable indicates the browser could not be started or reached.
type ErrEngineUnavailable struct {
	Err error
}

func (e ErrEngineUnavailable) Error() string {
	return fmt.Errorf("engine_unavailable: %w", e.Err).Error()
}

func (e ErrEngineUnavailable) Unwrap() error {
	return e.Err
}
