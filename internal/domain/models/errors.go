package models

import "errors"

var (
	// ErrInvalidInput marks malformed or inconsistent observations.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNumeric marks a degenerate or non-finite computation.
	ErrNumeric = errors.New("numeric error")
	// ErrModelNotReady marks a model call made before the model is usable.
	ErrModelNotReady = errors.New("model not ready")
)
