package chat

import (
	"context"
	"errors"
)

// Error kinds of a turn. All of them render the same way (a failed assistant
// message) but stay distinguishable with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrNetwork       = errors.New("network failure")
	ErrUpstream      = errors.New("upstream error")
	ErrEmptyResponse = errors.New("empty response")
	// ErrConfiguration is reported by the relay when its upstream credential is
	// missing. Clients cannot tell it apart from other relay failures, so sources
	// report it as ErrUpstream.
	ErrConfiguration = errors.New("configuration error")
)

// Fallback texts shown in the placeholder.
const (
	NoResponseText = "No response received from AI."
	FallbackText   = "Connection error."
	CancelledText  = "Cancelled."
)

// TurnError carries the user-facing description of a failed turn together with its kind.
type TurnError struct {
	Kind        error
	Description string
	Err         error
}

// NewTurnError builds a TurnError of the given kind.
func NewTurnError(kind error, description string, err error) *TurnError {
	return &TurnError{Kind: kind, Description: description, Err: err}
}

func (e *TurnError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return ""
}

func (e *TurnError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Describe returns the text placed in a failed placeholder for err.
func Describe(err error) string {
	if err == nil {
		return FallbackText
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return FallbackText
}

// Classify returns the kind of err. Errors without a kind, including
// ErrConfiguration, count as ErrUpstream; context deadlines count as network failures.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return ErrNetwork
	case errors.Is(err, ErrEmptyResponse):
		return ErrEmptyResponse
	default:
		return ErrUpstream
	}
}
