package service

import "errors"

var (
	// ErrContentTooLarge is returned when the declared or buffered size of a
	// response exceeds the configured content budget.
	ErrContentTooLarge = errors.New("content exceeds the maximum size limit")

	// ErrUpstreamTimeout is returned when the exchange with the target takes
	// longer than the configured timeout.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrTargetDenied is returned when the egress policy excludes the target.
	ErrTargetDenied = errors.New("target host is not allowed")
)

// UpstreamError wraps a DNS, connect or transport failure talking to the target.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }
