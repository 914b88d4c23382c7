package study

import "errors"

// Sentinel errors for the study package.
var (
	ErrInvalidRating   = errors.New("study: invalid rating")
	ErrInvalidMode     = errors.New("study: invalid mode")
	ErrNotStarted      = errors.New("study: session not started")
	ErrSessionComplete = errors.New("study: session complete")
)
