package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"danaya.health/portal/internal/auth"
	"danaya.health/portal/internal/ids"
)

// Keys under which session state is persisted.
const (
	KeyToken        = "portal.token"
	KeyOrganization = "portal.organization"
)

// Storage is durable local key/value storage.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store owns the identity, token and organization of the current session. All
// transitions go through its methods; reads return copies.
type Store struct {
	mu      sync.Mutex
	storage Storage
	now     func() time.Time
	newID   func() string

	gen Generation
	cur Snapshot
}

// Option configures Store behavior.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithIDGenerator overrides how session ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore returns an unauthenticated store persisting to storage.
func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		now:     time.Now,
		newID:   ids.NewSessionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := s.cur
	if s.cur.Organization != nil {
		org := *s.cur.Organization
		snap.Organization = &org
	}
	return snap
}

// Begin moves an unauthenticated session into Authenticating and returns the
// generation the eventual result must present.
func (s *Store) Begin() (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.cur.State == Authenticating:
		return 0, ErrLoginInProgress
	case s.cur.State.IsAuthenticated():
		return 0, ErrAlreadyAuthenticated
	}
	s.gen++
	s.cur = Snapshot{State: Authenticating, Generation: s.gen}
	return s.gen, nil
}

// Succeed completes the login started at gen. The session becomes Authenticated, or
// ContextPending when the organization is still being fetched. A persistence failure
// is reported but does not undo the transition.
func (s *Store) Succeed(ctx context.Context, gen Generation, grant Grant) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return s.snapshotLocked(), ErrStale
	}
	if s.cur.State != Authenticating {
		return s.snapshotLocked(), ErrNotAuthenticating
	}

	state := Authenticated
	if grant.Organization == nil && grant.ContextPending {
		state = ContextPending
	}
	var org *auth.Organization
	if grant.Organization != nil {
		o := *grant.Organization
		org = &o
	}
	s.cur = Snapshot{
		State:        state,
		Generation:   gen,
		ID:           s.newID(),
		Identity:     grant.Identity,
		Token:        grant.Token,
		Organization: org,
		StartedAt:    s.now().UTC(),
	}

	var errs []error
	if err := s.putJSON(ctx, KeyToken, grant.Token); err != nil {
		errs = append(errs, err)
	}
	if org != nil {
		if err := s.putJSON(ctx, KeyOrganization, org); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return s.snapshotLocked(), fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return s.snapshotLocked(), nil
}

// Fail returns the login started at gen to Unauthenticated, keeping err for display.
func (s *Store) Fail(gen Generation, err error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return s.snapshotLocked(), ErrStale
	}
	if s.cur.State != Authenticating {
		return s.snapshotLocked(), ErrNotAuthenticating
	}
	s.cur = Snapshot{State: Unauthenticated, Generation: gen, LastErr: err}
	return s.snapshotLocked(), nil
}

// ResolveContext applies a fetched organization. It reports false, changing nothing,
// when gen is stale or the session is no longer waiting for context.
func (s *Store) ResolveContext(ctx context.Context, gen Generation, org auth.Organization) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.cur.State != ContextPending {
		return false, nil
	}
	s.cur.State = Authenticated
	s.cur.Organization = &org
	s.cur.ContextErr = nil
	if err := s.putJSON(ctx, KeyOrganization, org); err != nil {
		return true, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return true, nil
}

// FailContext records a failed organization fetch. Page access is unaffected.
func (s *Store) FailContext(gen Generation, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.cur.State != ContextPending {
		return false
	}
	s.cur.State = ContextFailed
	s.cur.ContextErr = err
	return true
}

// Logout clears the session and its persisted state. Calling it again is harmless.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutLocked(ctx, nil)
}

// Expire logs the session out when its token has lapsed at now.
func (s *Store) Expire(ctx context.Context, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cur.State.IsAuthenticated() || !s.cur.Token.Expired(now) {
		return false, nil
	}
	return true, s.logoutLocked(ctx, ErrSessionExpired)
}

func (s *Store) logoutLocked(ctx context.Context, reason error) error {
	if s.cur.State != Unauthenticated {
		s.gen++
		s.cur = Snapshot{State: Unauthenticated, Generation: s.gen, LastErr: reason}
	}
	if s.storage == nil {
		return nil
	}
	var errs []error
	for _, key := range []string{KeyToken, KeyOrganization} {
		if err := s.storage.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// PersistedToken returns the token left behind by a previous process, if any.
func (s *Store) PersistedToken(ctx context.Context) (auth.Token, bool, error) {
	var tok auth.Token
	ok, err := s.getJSON(ctx, KeyToken, &tok)
	if err != nil || !ok || tok.Empty() {
		return auth.Token{}, false, err
	}
	return tok, true, nil
}

// PersistedOrganization returns the last stored organization snapshot, if any.
func (s *Store) PersistedOrganization(ctx context.Context) (*auth.Organization, error) {
	var org auth.Organization
	ok, err := s.getJSON(ctx, KeyOrganization, &org)
	if err != nil || !ok {
		return nil, err
	}
	return &org, nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	if s.storage == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.storage.Put(ctx, key, data)
}

func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	if s.storage == nil {
		return false, nil
	}
	data, ok, err := s.storage.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
