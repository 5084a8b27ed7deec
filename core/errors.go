package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies why a credential was rejected.
type ErrorKind string

// Rejection kinds. The first group are caller errors, ProviderRestricted is a
// policy violation, and the remainder describe the provider conversation.
const (
	KindCredentialMissing          ErrorKind = "credential_missing"
	KindMalformedHeader            ErrorKind = "malformed_header"
	KindMalformedToken             ErrorKind = "malformed_token"
	KindUnknownProvider            ErrorKind = "unknown_provider"
	KindProviderRestricted         ErrorKind = "provider_restricted"
	KindInvalidOrInsufficientToken ErrorKind = "invalid_or_insufficient_token"
	KindRequestTimeout             ErrorKind = "request_timeout"
	KindRateLimited                ErrorKind = "rate_limited"
	KindProviderUnavailable        ErrorKind = "provider_unavailable"
)

// Sentinel errors, one per ErrorKind. A *VerificationError matches the
// sentinel of its kind with errors.Is.
var (
	ErrCredentialMissing          = errors.New("credential missing")
	ErrMalformedHeader            = errors.New("malformed authorization header")
	ErrMalformedToken             = errors.New("malformed token")
	ErrUnknownProvider            = errors.New("unknown provider")
	ErrProviderRestricted         = errors.New("provider not allowed")
	ErrInvalidOrInsufficientToken = errors.New("invalid or insufficient token")
	ErrRequestTimeout             = errors.New("request timeout")
	ErrRateLimited                = errors.New("rate limited")
	ErrProviderUnavailable        = errors.New("provider unavailable")

	// ErrIdentityNotFound is returned when no identity is attached to a context.
	ErrIdentityNotFound = errors.New("identity not found in context")
)

var sentinels = map[ErrorKind]error{
	KindCredentialMissing:          ErrCredentialMissing,
	KindMalformedHeader:            ErrMalformedHeader,
	KindMalformedToken:             ErrMalformedToken,
	KindUnknownProvider:            ErrUnknownProvider,
	KindProviderRestricted:         ErrProviderRestricted,
	KindInvalidOrInsufficientToken: ErrInvalidOrInsufficientToken,
	KindRequestTimeout:             ErrRequestTimeout,
	KindRateLimited:                ErrRateLimited,
	KindProviderUnavailable:        ErrProviderUnavailable,
}

// Severity tells a log sink how loudly to report a rejection.
type Severity int

const (
	// SeverityOperational covers expected outcomes such as a bad header.
	SeverityOperational Severity = iota
	// SeverityDegraded covers transient provider pressure (timeouts, rate limits).
	SeverityDegraded
	// SeveritySystem covers provider outages and unclassified failures.
	SeveritySystem
)

// KindSeverity returns the log severity for a rejection kind.
func KindSeverity(kind ErrorKind) Severity {
	switch kind {
	case KindRequestTimeout, KindRateLimited:
		return SeverityDegraded
	case KindProviderUnavailable:
		return SeveritySystem
	default:
		return SeverityOperational
	}
}

// VerificationError carries a typed rejection through the engine.
type VerificationError struct {
	// Kind is the machine-readable rejection class.
	Kind ErrorKind

	// Message is a human-readable description safe to return to callers.
	Message string

	// Provider is set once the credential has been attributed to a provider.
	Provider ProviderTag

	// ProviderStatus is the HTTP status the provider answered with, if any.
	ProviderStatus int

	// RetryAfter is the provider's cooldown hint for RateLimited errors.
	RetryAfter time.Duration

	// Details contains the underlying error.
	Details error
}

// NewVerificationError creates a VerificationError of the given kind.
func NewVerificationError(kind ErrorKind, message string, details error) *VerificationError {
	return &VerificationError{
		Kind:    kind,
		Message: message,
		Details: details,
	}
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		msg = fmt.Sprintf("%s: %s", e.Provider, msg)
	}
	if e.Details != nil {
		return msg + ": " + e.Details.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *VerificationError) Unwrap() error {
	return e.Details
}

// Is matches the sentinel error for the error's kind.
func (e *VerificationError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Insufficient reports whether the provider recognised the credential but
// refused it for lack of permission (HTTP 403) rather than rejecting it outright.
func (e *VerificationError) Insufficient() bool {
	return e.Kind == KindInvalidOrInsufficientToken && e.ProviderStatus == 403
}

// KindOf returns the ErrorKind carried by err. Errors that are not
// VerificationErrors are treated as provider failures.
func KindOf(err error) ErrorKind {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	return KindProviderUnavailable
}

// asVerificationError normalises any error returned by an adapter.
func asVerificationError(err error, provider ProviderTag) *VerificationError {
	var verr *VerificationError
	if errors.As(err, &verr) {
		// Coalesced callers share err, so it is copied rather than mutated.
		out := *verr
		if out.Provider == "" {
			out.Provider = provider
		}
		return &out
	}
	return &VerificationError{
		Kind:     KindOf(err),
		Message:  "unclassified provider failure",
		Provider: provider,
		Details:  err,
	}
}
