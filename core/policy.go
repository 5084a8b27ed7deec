package core

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/flownity-dev/flownity-backend-sub000/introspect"
)

// Policy is a validated per-call-site configuration. Build one with
// Core.NewPolicy at setup time; the zero value stands for the Core's
// defaults.
type Policy struct {
	valid      bool
	required   bool
	allowed    []ProviderTag
	cacheTTL   time.Duration
	introspect introspect.Config
}

// Required reports whether the policy rejects requests without a credential.
func (p Policy) Required() bool { return p.required }

// AllowedProviders returns the providers accepted by the policy.
func (p Policy) AllowedProviders() []ProviderTag { return slices.Clone(p.allowed) }

// CacheTTL returns the cache lifetime used for identities verified under the policy.
func (p Policy) CacheTTL() time.Duration { return p.cacheTTL }

// Introspection returns the provider call bounds.
func (p Policy) Introspection() introspect.Config { return p.introspect }

func (p Policy) allows(provider ProviderTag) bool {
	return slices.Contains(p.allowed, provider)
}

// PolicyOption overrides one Core default for a call site.
type PolicyOption func(*Policy) error

// Required sets whether a credential must be presented.
func Required(required bool) PolicyOption {
	return func(p *Policy) error {
		p.required = required
		return nil
	}
}

// AllowedProviders restricts the providers a call site accepts.
func AllowedProviders(providers ...ProviderTag) PolicyOption {
	return func(p *Policy) error {
		if len(providers) == 0 {
			return errors.New("allowed providers cannot be empty")
		}
		p.allowed = slices.Clone(providers)
		return nil
	}
}

// CacheTTL overrides how long identities verified at this call site are cached.
func CacheTTL(ttl time.Duration) PolicyOption {
	return func(p *Policy) error {
		p.cacheTTL = ttl
		return nil
	}
}

// RequestTimeout overrides the per-attempt provider deadline.
func RequestTimeout(timeout time.Duration) PolicyOption {
	return func(p *Policy) error {
		p.introspect.Timeout = timeout
		return nil
	}
}

// MaxRetries overrides the number of extra provider attempts.
func MaxRetries(n int) PolicyOption {
	return func(p *Policy) error {
		p.introspect.MaxRetries = n
		return nil
	}
}

// RetryBackoff overrides the wait before the first retry.
func RetryBackoff(d time.Duration) PolicyOption {
	return func(p *Policy) error {
		p.introspect.BaseBackoff = d
		return nil
	}
}

// NewPolicy builds a Policy from the Core's defaults and opts and validates
// the result:
//   - allowed providers must be non-empty, registered and unique
//   - cache TTL must be >= 0
//   - request timeout must be > 0
//   - retries and backoff must be >= 0
func (c *Core) NewPolicy(opts ...PolicyOption) (Policy, error) {
	p := Policy{
		required: c.config.Required,
		allowed:  slices.Clone(c.config.AllowedProviders),
		cacheTTL: c.config.CacheTTL,
		introspect: introspect.Config{
			Timeout:     c.config.RequestTimeout,
			MaxRetries:  c.config.MaxRetries,
			BaseBackoff: c.config.RetryBackoff,
		},
	}
	if len(p.allowed) == 0 {
		p.allowed = c.registered()
	}

	for _, opt := range opts {
		if err := opt(&p); err != nil {
			return Policy{}, err
		}
	}

	if err := c.validatePolicy(p); err != nil {
		return Policy{}, err
	}
	p.valid = true
	return p, nil
}

// MustPolicy is like NewPolicy but panics on an invalid configuration.
// It is intended for route setup, where a bad policy is a startup error.
func (c *Core) MustPolicy(opts ...PolicyOption) Policy {
	p, err := c.NewPolicy(opts...)
	if err != nil {
		panic(fmt.Sprintf("core: invalid policy: %v", err))
	}
	return p
}

// DefaultPolicy returns the policy built from the Core's defaults.
func (c *Core) DefaultPolicy() Policy { return c.defaults }

func (c *Core) validatePolicy(p Policy) error {
	if len(p.allowed) == 0 {
		return errors.New("allowed providers cannot be empty")
	}
	seen := make(map[ProviderTag]struct{}, len(p.allowed))
	for _, tag := range p.allowed {
		if _, ok := c.adapters[tag]; !ok {
			return fmt.Errorf("unknown provider %q in allowed providers", tag)
		}
		if _, dup := seen[tag]; dup {
			return fmt.Errorf("duplicate provider %q in allowed providers", tag)
		}
		seen[tag] = struct{}{}
	}
	if p.cacheTTL < 0 {
		return fmt.Errorf("cache TTL cannot be negative, got %s", p.cacheTTL)
	}
	return p.introspect.Validate()
}

// registered returns the registered providers in identifier order, followed
// by any the identifier does not know about.
func (c *Core) registered() []ProviderTag {
	var out []ProviderTag
	if c.identifier != nil {
		for _, tag := range c.identifier.Providers() {
			if _, ok := c.adapters[tag]; ok {
				out = append(out, tag)
			}
		}
	}
	var rest []ProviderTag
	for tag := range c.adapters {
		if !slices.Contains(out, tag) {
			rest = append(rest, tag)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}
