// Package models defines data structures shared by the watcher components.
package models

import (
	"time"
)

// Outcome is the final classification of one attempt.
type Outcome string

const (
	OutcomeNoSlots        Outcome = "no_slots"
	OutcomeSlotsAvailable Outcome = "slots_available"
	OutcomeIndeterminate  Outcome = "indeterminate"
	OutcomeFailed         Outcome = "failed"
)

// DetectionResult is the tri-state result of scanning the landing page.
type DetectionResult string

const (
	DetectionNoSlots        DetectionResult = "no_slots"
	DetectionSlotsAvailable DetectionResult = "slots_available"
	DetectionIndeterminate  DetectionResult = "indeterminate"
)

// Outcome maps a detection result onto the attempt outcome.
func (d DetectionResult) Outcome() Outcome {
	switch d {
	case DetectionNoSlots:
		return OutcomeNoSlots
	case DetectionSlotsAvailable:
		return OutcomeSlotsAvailable
	default:
		return OutcomeIndeterminate
	}
}

// Detection carries a detection result together with what the page looked like.
type Detection struct {
	Result DetectionResult
	URL    string
	Reason string
}

// PostSubmitState tells how the portal reacted to the submit click.
type PostSubmitState string

const (
	PostSubmitUnknown        PostSubmitState = ""
	PostSubmitDialogShown    PostSubmitState = "dialog_shown"
	PostSubmitDirectRedirect PostSubmitState = "direct_redirect"
)

// Attempt is one open, fill, submit, detect, close cycle.
type Attempt struct {
	ID         string          `json:"id"`
	Number     int             `json:"attempt"`
	StartedAt  time.Time       `json:"started_at"`
	Outcome    Outcome         `json:"outcome"`
	Duration   time.Duration   `json:"duration"`
	URL        string          `json:"url,omitempty"`
	PostSubmit PostSubmitState `json:"post_submit,omitempty"`
	Err        error           `json:"-"`
}

// ErrorDetail returns the error text or an empty string.
func (a Attempt) ErrorDetail() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// StopReason explains why the controller left its loop.
type StopReason string

const (
	StopSlotsFound StopReason = "slots_found"
	StopNoSlots    StopReason = "no_slots"
	StopExhausted  StopReason = "exhausted"
	StopDeadline   StopReason = "deadline"
	StopCanceled   StopReason = "canceled"
	StopFatal      StopReason = "fatal"
)

// RunResult holds the overall result of a polling run.
type RunResult struct {
	StartTime     time.Time
	EndTime       time.Time
	Attempts      int
	Retries       int
	Reason        StopReason
	Last          *Attempt
	OutcomeCounts map[Outcome]int
	ErrorsByType  map[string]int
}

// SlotsFound reports whether the run ended on the success condition.
func (r *RunResult) SlotsFound() bool {
	return r != nil && r.Reason == StopSlotsFound
}
