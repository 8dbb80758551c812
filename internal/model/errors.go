package model

import (
	"errors"
	"fmt"
)

// Sentinel errors of the engine. Parse failures abort the request, patch
// failures are scoped to a single fingerprint, and overlap is a caller
// error that prevents any partial application.
var (
	// ErrSuggestionUnavailable means the LLM backend was unreachable or
	// timed out. Retryable by the caller.
	ErrSuggestionUnavailable = errors.New("suggestion unavailable")

	// ErrPatchRejected means generated markup failed validation. Terminal
	// for the fingerprint unless the caller explicitly regenerates.
	ErrPatchRejected = errors.New("patch rejected")

	// ErrOverlappingPatches means two patches in a set target overlapping
	// spans. Nothing is applied.
	ErrOverlappingPatches = errors.New("overlapping patches")
)

// MalformedMarkupError reports an unrecoverable parse failure at a specific
// byte offset in the input.
type MalformedMarkupError struct {
	Offset int
	Err    error
}

func (e *MalformedMarkupError) Error() string {
	return fmt.Sprintf("malformed markup at byte %d: %v", e.Offset, e.Err)
}

func (e *MalformedMarkupError) Unwrap() error {
	return e.Err
}

// OverlapError identifies the two spans that collide. It unwraps to
// ErrOverlappingPatches.
type OverlapError struct {
	A, B Span
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping patches: [%d,%d) and [%d,%d)", e.A.Start, e.A.End, e.B.Start, e.B.End)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlappingPatches
}

// RejectionError records why a generated patch failed validation. It
// unwraps to ErrPatchRejected.
type RejectionError struct {
	Fingerprint string
	Reason      string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("patch rejected (%s): %s", e.Fingerprint, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrPatchRejected
}
