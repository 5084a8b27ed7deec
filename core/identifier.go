package core

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// Pattern maps a credential shape to the provider that issues it.
// Lower Priority values are evaluated first; equal priorities keep their
// declaration order.
type Pattern struct {
	Provider ProviderTag
	Expr     *regexp.Regexp
	Priority int
}

// DefaultPatterns returns the credential shapes of the built-in providers.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Classic, OAuth, user-to-server, server-to-server and refresh tokens.
		{Provider: ProviderGitHub, Expr: regexp.MustCompile(`^gh[pousr]_[A-Za-z0-9]{36,251}$`), Priority: 10},
		// Fine-grained personal access tokens.
		{Provider: ProviderGitHub, Expr: regexp.MustCompile(`^github_pat_[A-Za-z0-9_]{22,244}$`), Priority: 10},
		{Provider: ProviderGoogle, Expr: regexp.MustCompile(`^ya29\.[A-Za-z0-9._-]+$`), Priority: 20},
		// OpenID Connect ID tokens are compact JWS values.
		{Provider: ProviderGoogle, Expr: regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+$`), Priority: 30},
	}
}

// Identifier classifies raw credentials into provider tags.
// It is immutable after construction and safe for concurrent use.
type Identifier struct {
	patterns []Pattern
	known    []ProviderTag
}

// NewIdentifier builds an Identifier from an ordered list of patterns.
func NewIdentifier(patterns ...Pattern) (*Identifier, error) {
	if len(patterns) == 0 {
		return nil, errors.New("at least one provider pattern is required")
	}

	sorted := make([]Pattern, len(patterns))
	copy(sorted, patterns)
	for i, p := range sorted {
		if p.Provider == "" {
			return nil, fmt.Errorf("pattern %d: provider tag is empty", i)
		}
		if p.Expr == nil {
			return nil, fmt.Errorf("pattern %d (%s): expression is nil", i, p.Provider)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	seen := make(map[ProviderTag]struct{})
	var known []ProviderTag
	for _, p := range sorted {
		if _, ok := seen[p.Provider]; !ok {
			seen[p.Provider] = struct{}{}
			known = append(known, p.Provider)
		}
	}

	return &Identifier{patterns: sorted, known: known}, nil
}

// Identify returns the provider of the first matching pattern.
func (i *Identifier) Identify(credential string) (ProviderTag, *VerificationError) {
	for _, p := range i.patterns {
		if p.Expr.MatchString(credential) {
			return p.Provider, nil
		}
	}
	return "", NewVerificationError(KindUnknownProvider, "credential does not match any known provider", nil)
}

// Providers returns every provider tag the identifier can produce, in
// evaluation order.
func (i *Identifier) Providers() []ProviderTag {
	out := make([]ProviderTag, len(i.known))
	copy(out, i.known)
	return out
}
