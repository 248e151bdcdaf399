package domain

import (
	"errors"
	"fmt"
)

// Common errors returned by the verification service.
var (
	// ErrNoMatch means compilation succeeded but no contract reproduced the
	// target code.
	ErrNoMatch = errors.New("no contract could be verified with provided data")

	ErrNotFound = errors.New("verified contract not found")

	// ErrUpstream wraps failures to reach an RPC endpoint or Sourcify.
	ErrUpstream = errors.New("upstream service unavailable")
)

// MalformedRequestError is returned for requests that cannot be verified no
// matter what the compiler produces.
type MalformedRequestError struct {
	Reason string
}

func (e *MalformedRequestError) Error() string {
	return "malformed request: " + e.Reason
}

func malformed(format string, args ...any) error {
	return &MalformedRequestError{Reason: fmt.Sprintf(format, args...)}
}

// VerificationFailedError is a rejection reported by a remote verifier.
type VerificationFailedError struct {
	Message string
}

func (e *VerificationFailedError) Error() string {
	return e.Message
}
