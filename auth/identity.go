package auth

// Identity is the request-scoped view of the caller, resolved by the HTTP
// middleware and handed down to anything that must not act on behalf of an
// unauthenticated caller (notably the completion client, which refuses to
// dispatch upstream without one).
type Identity struct {
	Authenticated bool
	Subject       string
}

// IsAuthenticated reports whether the caller is signed in
func (i Identity) IsAuthenticated() bool {
	return i.Authenticated
}

// Anonymous is the identity used when no auth mode is configured.
// Single-user deployments without auth are treated as the local user.
var Anonymous = Identity{Authenticated: true, Subject: "local"}

// Unauthenticated is the zero-value caller that failed every auth check
var Unauthenticated = Identity{}
