package core

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier_DefaultPatterns(t *testing.T) {
	identifier, err := NewIdentifier(DefaultPatterns()...)
	require.NoError(t, err)

	tests := []struct {
		name       string
		credential string
		want       ProviderTag
	}{
		{name: "classic pat", credential: "ghp_" + strings.Repeat("x", 36), want: ProviderGitHub},
		{name: "oauth token", credential: "gho_" + strings.Repeat("A9", 20), want: ProviderGitHub},
		{name: "server token", credential: "ghs_" + strings.Repeat("b", 40), want: ProviderGitHub},
		{name: "fine grained pat", credential: "github_pat_" + strings.Repeat("a_", 20), want: ProviderGitHub},
		{name: "google access token", credential: googleToken, want: ProviderGoogle},
		{name: "google id token", credential: "eyJhbGciOiJSUzI1NiJ9.eyJzdWIiOiIxIn0.c2ln", want: ProviderGoogle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, verr := identifier.Identify(tt.credential)
			require.Nil(t, verr)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown shapes", func(t *testing.T) {
		for _, credential := range []string{
			"ghp_" + strings.Repeat("x", 35),
			"ghx_" + strings.Repeat("x", 40),
			"glpat-abcdefghijklmnop",
			"sk_live_abcdefghijklmnop",
		} {
			_, verr := identifier.Identify(credential)
			require.NotNil(t, verr, credential)
			assert.Equal(t, KindUnknownProvider, verr.Kind)
		}
	})

	t.Run("deterministic regardless of call order", func(t *testing.T) {
		credentials := []string{githubToken, googleToken, githubToken, googleToken}
		first := make([]ProviderTag, len(credentials))
		for i, c := range credentials {
			first[i], _ = identifier.Identify(c)
		}
		for i := len(credentials) - 1; i >= 0; i-- {
			got, _ := identifier.Identify(credentials[i])
			assert.Equal(t, first[i], got)
		}
	})

	assert.Equal(t, []ProviderTag{ProviderGitHub, ProviderGoogle}, identifier.Providers())
}

func TestIdentifier_Priority(t *testing.T) {
	anything := regexp.MustCompile(`.+`)

	t.Run("lowest priority wins", func(t *testing.T) {
		identifier, err := NewIdentifier(
			Pattern{Provider: "late", Expr: anything, Priority: 50},
			Pattern{Provider: "early", Expr: anything, Priority: 1},
		)
		require.NoError(t, err)

		got, verr := identifier.Identify("whatever-token")
		require.Nil(t, verr)
		assert.Equal(t, ProviderTag("early"), got)
		assert.Equal(t, []ProviderTag{"early", "late"}, identifier.Providers())
	})

	t.Run("ties keep declaration order", func(t *testing.T) {
		identifier, err := NewIdentifier(
			Pattern{Provider: "first", Expr: anything, Priority: 5},
			Pattern{Provider: "second", Expr: anything, Priority: 5},
		)
		require.NoError(t, err)

		got, _ := identifier.Identify("whatever-token")
		assert.Equal(t, ProviderTag("first"), got)
	})
}

func TestNewIdentifier_Errors(t *testing.T) {
	_, err := NewIdentifier()
	assert.ErrorContains(t, err, "at least one provider pattern is required")

	_, err = NewIdentifier(Pattern{Expr: regexp.MustCompile(`x`)})
	assert.ErrorContains(t, err, "provider tag is empty")

	_, err = NewIdentifier(Pattern{Provider: ProviderGitHub})
	assert.ErrorContains(t, err, "expression is nil")
}
