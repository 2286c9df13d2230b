package engine

import (
	"errors"

	"boardsync/domain"
)

// AuthError reports a write attempted with no current user. Local state has
// already been mutated optimistically when this is discovered, so it triggers
// the same rollback as a transport failure.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return "not authenticated"
	}
	return "not authenticated: " + e.Reason
}

// TransportError reports a remote write or read that failed for network or
// server reasons. Write-path transport errors roll local state back.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "remote store unavailable: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorKind classifies a failure for the UI layer.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindAuth       ErrorKind = "auth"
	KindTransport  ErrorKind = "transport"
	KindUnknown    ErrorKind = "unknown"
)

// Classify maps an error from any intent to its taxonomy kind.
func Classify(err error) ErrorKind {
	var (
		ve *domain.ValidationError
		nf *domain.NotFoundError
		ae *AuthError
		te *TransportError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &nf):
		return KindNotFound
	case errors.As(err, &ae):
		return KindAuth
	case errors.As(err, &te):
		return KindTransport
	default:
		return KindUnknown
	}
}
