package narration

import (
	"errors"
	"fmt"
)

// Common narration errors
var (
	// ErrInterrupted is reported by a synthesizer whose utterance was cut
	// short by Cancel.
	ErrInterrupted = errors.New("utterance interrupted")

	// ErrNoCredential indicates the remote backend has no credential.
	ErrNoCredential = errors.New("remote synthesis credential not configured")

	// ErrEmptyAudio indicates the remote API returned no audio bytes.
	ErrEmptyAudio = errors.New("remote synthesis returned no audio")
)

// ErrorKind identifies how the engine reacts to a failure.
type ErrorKind string

const (
	KindConfigurationMissing ErrorKind = "CONFIGURATION_MISSING"
	KindNetworkOrAPI         ErrorKind = "NETWORK_OR_API_FAILURE"
	KindDecode               ErrorKind = "DECODE_FAILURE"
	KindBenignInterruption   ErrorKind = "BENIGN_INTERRUPTION"
	KindSynthesis            ErrorKind = "SYNTHESIS_ERROR"
)

// Error is a narration failure with a kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewError creates a new narration error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Message == "" && t.Kind == e.Kind
	}
	return false
}

// KindOf returns the kind of err. Errors that carry no kind are treated as
// synthesis errors, and ErrInterrupted as a benign interruption.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Kind
	}
	if errors.Is(err, ErrInterrupted) {
		return KindBenignInterruption
	}
	return KindSynthesis
}

