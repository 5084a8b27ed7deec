package core

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	identityKey contextKey = iota
)

// GetIdentity returns the verified identity attached to ctx.
//
// Example usage:
//
//	identity, err := core.GetIdentity(r.Context())
//	if err != nil {
//	    return err
//	}
//	fmt.Println(identity.Username)
func GetIdentity(ctx context.Context) (Identity, error) {
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return identity, nil
}

// SetIdentity attaches a verified identity to ctx.
// Transport adapters call this after a successful verification.
func SetIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// HasIdentity reports whether ctx carries a verified identity.
func HasIdentity(ctx context.Context) bool {
	_, ok := ctx.Value(identityKey).(Identity)
	return ok
}
