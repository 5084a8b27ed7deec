package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// ProviderTag names the identity provider that issued a credential.
type ProviderTag string

// Built-in providers.
const (
	ProviderGitHub ProviderTag = "github"
	ProviderGoogle ProviderTag = "google"
)

// Identity is the canonical result of a successful verification.
// Optional fields are left empty when the provider did not supply them.
type Identity struct {
	Provider  ProviderTag `json:"provider"`
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email,omitempty"`
	Name      string      `json:"name,omitempty"`
	AvatarURL string      `json:"avatar_url,omitempty"`
}

// HashCredential returns the hex SHA-256 of a raw credential. Caches key on
// this value so the raw credential is never stored.
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short, log-safe prefix of HashCredential.
func Fingerprint(credential string) string {
	return HashCredential(credential)[:12]
}

// Status is the terminal state of a verification.
type Status int

const (
	// StatusSuccess means Identity holds the verified caller.
	StatusSuccess Status = iota
	// StatusNoCredential means no credential was presented and the policy allows that.
	StatusNoCredential
	// StatusRejected means Err explains why the credential was refused.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNoCredential:
		return "no_credential"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the only value the orchestrator returns.
type Outcome struct {
	Status   Status
	Identity *Identity
	Err      *VerificationError
	// Cached is true when the identity was served from the cache.
	Cached bool
}

// Success builds a successful outcome.
func Success(identity Identity, cached bool) Outcome {
	return Outcome{Status: StatusSuccess, Identity: &identity, Cached: cached}
}

// NoCredential builds the pass-through outcome for optional authentication.
func NoCredential() Outcome {
	return Outcome{Status: StatusNoCredential}
}

// Rejected builds a rejection outcome.
func Rejected(err *VerificationError) Outcome {
	return Outcome{Status: StatusRejected, Err: err}
}

// Kind returns the rejection kind, or the empty string for non-rejections.
func (o Outcome) Kind() ErrorKind {
	if o.Err == nil {
		return ""
	}
	return o.Err.Kind
}
