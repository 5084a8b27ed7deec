package tokenmiddleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/flownity-dev/flownity-backend-sub000/core"
)

// ErrorHandler answers a rejected request. err is normally a
// *core.VerificationError; handlers should fall back to a 500 for anything
// else. Implementations MUST write a response.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// ErrorResponse is the JSON body written for rejected requests.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
}

// Rejection describes how an error is surfaced over HTTP. Framework adapters
// use it to build their own responses.
type Rejection struct {
	Status int
	Body   ErrorResponse
	// WWWAuthenticate is the RFC 6750 challenge, empty when the failure is not
	// the caller's credential.
	WWWAuthenticate string
	// RetryAfter is set for rate-limited rejections.
	RetryAfter time.Duration
}

// Headers returns the response headers for the rejection.
func (rej Rejection) Headers() http.Header {
	h := http.Header{}
	if rej.WWWAuthenticate != "" {
		h.Set("WWW-Authenticate", rej.WWWAuthenticate)
	}
	if rej.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(int(math.Ceil(rej.RetryAfter.Seconds()))))
	}
	return h
}

// Describe maps err to its HTTP surfacing:
//
//	credential_missing               401 invalid_token
//	malformed_header                 400 invalid_request
//	malformed_token                  401 invalid_token
//	unknown_provider                 401 invalid_token
//	provider_restricted              403 insufficient_scope
//	invalid_or_insufficient_token    401 invalid_token, or 403 insufficient_scope
//	request_timeout                  408
//	rate_limited                     429
//	provider_unavailable             503
func Describe(err error) Rejection {
	var verr *core.VerificationError
	if !errors.As(err, &verr) {
		return Rejection{
			Status: http.StatusInternalServerError,
			Body: ErrorResponse{
				Error:            "server_error",
				ErrorDescription: "Something went wrong while verifying the request",
			},
		}
	}

	desc := verr.Message
	body := ErrorResponse{ErrorDescription: desc, ErrorCode: string(verr.Kind)}

	switch verr.Kind {
	case core.KindCredentialMissing:
		body.Error = "invalid_token"
		// A missing credential gets a bare challenge without error attributes.
		return Rejection{Status: http.StatusUnauthorized, Body: body, WWWAuthenticate: "Bearer"}

	case core.KindMalformedHeader:
		body.Error = "invalid_request"
		return Rejection{Status: http.StatusBadRequest, Body: body, WWWAuthenticate: challenge("invalid_request", desc)}

	case core.KindProviderRestricted:
		body.Error = "insufficient_scope"
		return Rejection{Status: http.StatusForbidden, Body: body, WWWAuthenticate: challenge("insufficient_scope", desc)}

	case core.KindInvalidOrInsufficientToken:
		if verr.Insufficient() {
			body.Error = "insufficient_scope"
			return Rejection{Status: http.StatusForbidden, Body: body, WWWAuthenticate: challenge("insufficient_scope", desc)}
		}
		body.Error = "invalid_token"
		return Rejection{Status: http.StatusUnauthorized, Body: body, WWWAuthenticate: challenge("invalid_token", desc)}

	case core.KindMalformedToken, core.KindUnknownProvider:
		body.Error = "invalid_token"
		return Rejection{Status: http.StatusUnauthorized, Body: body, WWWAuthenticate: challenge("invalid_token", desc)}

	case core.KindRequestTimeout:
		body.Error = "request_timeout"
		return Rejection{Status: http.StatusRequestTimeout, Body: body}

	case core.KindRateLimited:
		body.Error = "rate_limited"
		return Rejection{Status: http.StatusTooManyRequests, Body: body, RetryAfter: verr.RetryAfter}

	default:
		body.Error = "temporarily_unavailable"
		return Rejection{Status: http.StatusServiceUnavailable, Body: body}
	}
}

func challenge(code, description string) string {
	if description == "" {
		return fmt.Sprintf("Bearer error=%q", code)
	}
	return fmt.Sprintf("Bearer error=%q, error_description=%q", code, description)
}

// DefaultErrorHandler writes the Describe mapping as JSON. It is used when
// WithErrorHandler is not given.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	rej := Describe(err)

	for k, vs := range rej.Headers() {
		w.Header()[k] = vs
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rej.Status)
	_ = json.NewEncoder(w).Encode(rej.Body)
}
