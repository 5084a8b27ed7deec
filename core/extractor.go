package core

import (
	"regexp"
	"strings"
)

const (
	bearerScheme = "Bearer "

	// MinCredentialLength is the shortest credential accepted by ExtractBearer.
	MinCredentialLength = 10
)

var credentialCharset = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ExtractBearer parses an Authorization header value into a raw credential.
//
// An empty header is reported as CredentialMissing. The scheme must be exactly
// "Bearer" followed by a single space; the credential must be at least
// MinCredentialLength characters drawn from [A-Za-z0-9._-].
func ExtractBearer(header string) (string, *VerificationError) {
	if header == "" {
		return "", NewVerificationError(KindCredentialMissing, "authorization header is missing", nil)
	}

	if !strings.HasPrefix(header, bearerScheme) {
		return "", NewVerificationError(KindMalformedHeader, "authorization header format must be Bearer {token}", nil)
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, bearerScheme))
	if token == "" {
		return "", NewVerificationError(KindMalformedHeader, "bearer token is empty", nil)
	}

	if len(token) < MinCredentialLength {
		return "", NewVerificationError(KindMalformedToken, "bearer token is too short", nil)
	}
	if !credentialCharset.MatchString(token) {
		return "", NewVerificationError(KindMalformedToken, "bearer token contains invalid characters", nil)
	}

	return token, nil
}

// knownSchemes are the HTTP authentication schemes HeaderScheme reports by name.
var knownSchemes = []string{"Bearer", "Basic", "Token", "Digest", "DPoP", "Negotiate", "HOBA", "Mutual", "AWS4-HMAC-SHA256"}

// HeaderScheme returns the scheme portion of an Authorization header for
// logging. Only registered scheme names are echoed, as sent; any other first
// word is reported as "other" since it may be the credential itself. A header
// without a space yields "".
func HeaderScheme(header string) string {
	scheme, rest, found := strings.Cut(header, " ")
	if !found || strings.TrimSpace(rest) == "" {
		return ""
	}
	for _, known := range knownSchemes {
		if strings.EqualFold(scheme, known) {
			return scheme
		}
	}
	return "other"
}
