package auth

import "context"

// IdentityKind differentiates how the request was authenticated.
type IdentityKind string

const (
	// IdentityKindPrincipal is a human principal (headers, bearer, session).
	IdentityKindPrincipal IdentityKind = "principal"
	// IdentityKindService is a pre-shared service token.
	IdentityKindService IdentityKind = "service"
)

// Identity captures the resolved request identity propagated through the
// request context. It is a value snapshot: mutating a copy never affects
// other readers.
type Identity struct {
	// Kind differentiates principals and service callers.
	Kind IdentityKind
	// PrincipalID references the backing row (principals.id or service_tokens.id).
	PrincipalID string
	// Subject is the provider's stable subject identifier, when known.
	Subject string
	// Username is the case-folded human-facing identifier, or the service
	// token name for service callers.
	Username string
	// Email is optional and present for human principals when available.
	Email string
	// Name is an optional display name.
	Name string
	// Role is the principal's access tier. Empty for service callers,
	// which are authorized by service type instead.
	Role Role
	// ServiceType is set for service callers only.
	ServiceType string
	// SessionID references the active session row, when the session or
	// hybrid strategy produced this identity.
	SessionID string
	// Strategy names the authentication strategy that succeeded.
	Strategy string
	// Groups lists provider group memberships, when the trust source
	// carried them.
	Groups []string
}

type identityContextKey struct{}

// SetIdentityContext stores the resolved identity on the context for
// downstream consumers.
func SetIdentityContext(ctx context.Context, identity Identity) context.Context {
	identity.Groups = append([]string(nil), identity.Groups...)
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the resolved identity from the context.
// The second return is false for unauthenticated (public) requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok {
		return Identity{}, false
	}
	identity.Groups = append([]string(nil), identity.Groups...)
	return identity, true
}
