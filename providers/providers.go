// Package providers holds the response classification shared by the
// provider adapters in its subpackages.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flownity-dev/flownity-backend-sub000/core"
	"github.com/flownity-dev/flownity-backend-sub000/introspect"
)

// Doer performs introspection calls. *introspect.Client implements it.
type Doer interface {
	Do(ctx context.Context, req introspect.Request, cfg introspect.Config) (*introspect.Response, error)
}

var _ Doer = (*introspect.Client)(nil)

// RetryableStatuses are the provider answers worth retrying at the transport
// layer. Everything else is definitive.
var RetryableStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Retryable flags RetryableStatuses.
func Retryable() func(*introspect.Response) bool {
	return introspect.RetryOnStatus(RetryableStatuses...)
}

// Reject builds a VerificationError attributed to provider.
func Reject(provider core.ProviderTag, kind core.ErrorKind, status int, message string, details error) *core.VerificationError {
	verr := core.NewVerificationError(kind, message, details)
	verr.Provider = provider
	verr.ProviderStatus = status
	return verr
}

// ClassifyError maps a transport error from the introspection client.
func ClassifyError(provider core.ProviderTag, err error) *core.VerificationError {
	if errors.Is(err, introspect.ErrRequestTimeout) {
		return Reject(provider, core.KindRequestTimeout, 0, "provider did not answer in time", err)
	}
	return Reject(provider, core.KindProviderUnavailable, 0, "provider is unreachable", err)
}

// ClassifyStatus maps a non-success response using the rules every provider
// shares:
//   - 401 and 403 reject the credential
//   - 429 is a rate limit, honouring Retry-After
//   - 5xx and anything unexpected mean the provider is unavailable
//
// Provider-specific quirks are handled by the adapters before calling it.
func ClassifyStatus(provider core.ProviderTag, resp *introspect.Response, now time.Time) *core.VerificationError {
	switch status := resp.StatusCode; {
	case status == http.StatusUnauthorized:
		return Reject(provider, core.KindInvalidOrInsufficientToken, status, "token is invalid or expired", nil)
	case status == http.StatusForbidden:
		return Reject(provider, core.KindInvalidOrInsufficientToken, status, "token lacks the required permissions", nil)
	case status == http.StatusTooManyRequests:
		verr := Reject(provider, core.KindRateLimited, status, "provider rate limit exceeded", nil)
		verr.RetryAfter = RetryAfter(resp.Header, now)
		return verr
	case status >= 500:
		return Reject(provider, core.KindProviderUnavailable, status, "provider is unavailable", nil)
	default:
		return Reject(provider, core.KindProviderUnavailable, status,
			fmt.Sprintf("unexpected provider response status %d", status), nil)
	}
}

// RetryAfter parses a Retry-After header given either in seconds or as an
// HTTP date. It returns zero when the header is absent or unusable.
func RetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// UnixReset returns the wait until a unix-seconds reset timestamp such as
// X-RateLimit-Reset.
func UnixReset(v string, now time.Time) time.Duration {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	if at := time.Unix(secs, 0); at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// EmailLocalPart returns the part of an address before the @.
func EmailLocalPart(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return ""
	}
	return local
}

// Handle returns the first non-empty candidate.
func Handle(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
