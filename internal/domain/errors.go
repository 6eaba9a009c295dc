package domain

import "errors"

var (
	// ErrMalformedBatch is returned when a submitted batch fails structural
	// validation: a negative amount, or a transaction missing a
	// sender/receiver identifier. Self-loop transactions are not a
	// violation; graph.Build drops them silently and counts them in
	// Summary.SelfLoopsDropped instead.
	ErrMalformedBatch = errors.New("malformed transaction batch")

	// ErrCancelled is returned when Analyze's context is cancelled before
	// detection completes.
	ErrCancelled = errors.New("analysis cancelled")

	// ErrConfigurationError is returned when an EngineConfig fails
	// validation (a threshold outside its valid range, a non-positive
	// window, etc).
	ErrConfigurationError = errors.New("invalid engine configuration")
)
