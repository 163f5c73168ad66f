// Package session holds the portal's single session and the transitions between its
// states. Capabilities are derived from the session role on every read and are
// available as soon as any authenticated state is entered.
package session

import (
	"errors"
	"time"

	"danaya.health/portal/internal/auth"
)

// State is the lifecycle position of the session.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	ContextPending
	ContextFailed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case ContextPending:
		return "authenticated+context-pending"
	case ContextFailed:
		return "authenticated+context-failed"
	default:
		return "unknown"
	}
}

// IsAuthenticated reports whether s belongs to the authenticated family.
func (s State) IsAuthenticated() bool {
	return s == Authenticated || s == ContextPending || s == ContextFailed
}

var (
	ErrLoginInProgress      = errors.New("session: login already in progress")
	ErrAlreadyAuthenticated = errors.New("session: already authenticated")
	ErrStale                = errors.New("session: stale generation")
	ErrNotAuthenticating    = errors.New("session: no login in progress")
	ErrSessionExpired       = errors.New("session: expired")
	ErrPersist              = errors.New("session: persist state")
)

// Generation identifies one login attempt. Results carrying an older generation are
// discarded.
type Generation uint64

// Grant is the successful outcome of authentication handed to the store.
type Grant struct {
	Identity       auth.Identity
	Token          auth.Token
	Organization   *auth.Organization
	ContextPending bool
}

// Snapshot is an immutable copy of the session at one point in time.
type Snapshot struct {
	State        State
	Generation   Generation
	ID           string
	Identity     auth.Identity
	Token        auth.Token
	Organization *auth.Organization
	ContextErr   error
	LastErr      error
	StartedAt    time.Time
}

// Authenticated reports whether the snapshot belongs to the authenticated family.
func (s Snapshot) Authenticated() bool {
	return s.State.IsAuthenticated()
}

// Capabilities derives the capability set from the session role. Sessions that are
// not authenticated get the empty set.
func (s Snapshot) Capabilities() auth.CapabilitySet {
	if !s.Authenticated() {
		return auth.CapabilitiesFor("")
	}
	return auth.CapabilitiesFor(s.Identity.Role)
}

// Principal returns the identity with its derived capabilities.
func (s Snapshot) Principal() auth.Principal {
	return auth.Principal{Identity: s.Identity, Capabilities: s.Capabilities()}
}
