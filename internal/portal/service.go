// Package portal ties authentication, the session store and navigation together.
// It is the only caller that turns authenticator results into session transitions.
package portal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"danaya.health/portal/internal/audit"
	"danaya.health/portal/internal/auth"
	"danaya.health/portal/internal/authn"
	"danaya.health/portal/internal/guard"
	"danaya.health/portal/internal/obs"
	"danaya.health/portal/internal/router"
	"danaya.health/portal/internal/session"
)

const (
	defaultLoginTimeout   = 10 * time.Second
	defaultContextTimeout = 5 * time.Second
)

var (
	ErrTooManyAttempts = errors.New("portal: too many login attempts")
	ErrNoSavedSession  = errors.New("portal: no saved session")
)

// Service is the portal session facade used by the HTTP layer and the smoke binary.
type Service struct {
	authn  authn.Authenticator
	orgs   authn.OrganizationFetcher
	store  *session.Store
	router *router.Router

	limiter        *rate.Limiter
	loginTimeout   time.Duration
	contextTimeout time.Duration
	now            func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	cancelFetch context.CancelFunc
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithLoginTimeout bounds each call to the auth service.
func WithLoginTimeout(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d > 0 {
			s.loginTimeout = d
		}
		return nil
	}
}

// WithContextTimeout bounds each organization fetch.
func WithContextTimeout(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d > 0 {
			s.contextTimeout = d
		}
		return nil
	}
}

// WithLoginLimit allows perMinute login attempts with the given burst. A
// non-positive perMinute disables the limit.
func WithLoginLimit(perMinute, burst int) ServiceOption {
	return func(s *Service) error {
		if perMinute <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return nil
		}
		if burst <= 0 {
			return errors.New("portal: login burst must be positive")
		}
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service. orgs may be nil when the auth service always embeds
// the organization.
func NewService(a authn.Authenticator, orgs authn.OrganizationFetcher, store *session.Store, opts ...ServiceOption) (*Service, error) {
	if a == nil || store == nil {
		return nil, errors.New("portal: authenticator and store are required")
	}
	base, cancel := context.WithCancel(context.Background())
	svc := &Service{
		authn:          a,
		orgs:           orgs,
		store:          store,
		router:         router.New(store),
		limiter:        rate.NewLimiter(rate.Every(time.Minute/10), 5),
		loginTimeout:   defaultLoginTimeout,
		contextTimeout: defaultContextTimeout,
		now:            time.Now,
		base:           base,
		cancel:         cancel,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			cancel()
			return nil, err
		}
	}
	return svc, nil
}

// Login authenticates the credentials and opens a session. Failures leave the
// session unauthenticated and return auth.ErrMissingCredentials, ErrTooManyAttempts,
// a session state error, or an *auth.AuthError.
func (s *Service) Login(ctx context.Context, email, password string) (session.Snapshot, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		obs.ObserveLogin("missing")
		_ = audit.LogEvent(ctx, audit.EventLoginFailed, map[string]any{"reason": "missing_credentials"})
		return s.store.Snapshot(), auth.ErrMissingCredentials
	}
	if !s.limiter.Allow() {
		obs.ObserveLogin("throttled")
		_ = audit.LogEvent(ctx, audit.EventLoginFailed, map[string]any{"email": email, "reason": "throttled"})
		return s.store.Snapshot(), ErrTooManyAttempts
	}

	gen, err := s.store.Begin()
	if err != nil {
		return s.store.Snapshot(), err
	}

	lctx, cancel := context.WithTimeout(ctx, s.loginTimeout)
	res, err := s.authn.Login(lctx, email, password)
	cancel()
	if err != nil {
		if !errors.Is(err, auth.ErrMissingCredentials) {
			var ae *auth.AuthError
			if !errors.As(err, &ae) {
				ae = auth.NewAuthError(err)
			}
			obs.LogJSON("warn", "login rejected", map[string]any{"email": email, "cause": ae.Cause()})
			err = ae
		}
		snap, _ := s.store.Fail(gen, err)
		obs.ObserveLogin("failure")
		_ = audit.LogEvent(ctx, audit.EventLoginFailed, map[string]any{"email": email})
		return snap, err
	}

	grant := session.Grant{
		Identity:       res.Identity,
		Token:          res.Token,
		Organization:   res.Organization,
		ContextPending: res.Organization == nil && res.OrganizationRef != "" && s.orgs != nil,
	}
	snap, err := s.store.Succeed(ctx, gen, grant)
	switch {
	case errors.Is(err, session.ErrPersist):
		obs.LogJSON("error", "persist session failed", map[string]any{"error": err})
	case err != nil:
		return snap, err
	}

	s.router.Reset()
	obs.ObserveLogin("success")
	obs.SetSessionActive(true)
	_ = audit.LogEvent(withSession(ctx, snap), audit.EventLoginSucceeded, map[string]any{"state": snap.State.String()})

	if snap.State == session.ContextPending {
		s.fetchContext(snap, res.OrganizationRef)
	}
	return snap, nil
}

// fetchContext loads the organization in the background. The result is applied only
// if the session that started it is still the current one.
func (s *Service) fetchContext(snap session.Snapshot, ref string) {
	ctx, cancel := context.WithTimeout(s.base, s.contextTimeout)
	s.mu.Lock()
	if s.cancelFetch != nil {
		s.cancelFetch()
	}
	s.cancelFetch = cancel
	s.mu.Unlock()

	gen := snap.Generation
	actx := withSession(context.Background(), snap)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		org, err := s.orgs.FetchOrganization(ctx, ref)
		if err != nil {
			var cfe *auth.ContextFetchError
			if !errors.As(err, &cfe) {
				err = auth.NewContextFetchError(ref, err)
			}
			if !s.store.FailContext(gen, err) {
				obs.ObserveContextFetch("stale")
				return
			}
			obs.ObserveContextFetch("failure")
			obs.LogJSON("warn", "organization fetch failed", map[string]any{"ref": ref, "error": errors.Unwrap(err)})
			_ = audit.LogEvent(actx, audit.EventContextFailed, map[string]any{"organization": ref})
			return
		}

		applied, err := s.store.ResolveContext(ctx, gen, org)
		if !applied {
			obs.ObserveContextFetch("stale")
			return
		}
		obs.ObserveContextFetch("success")
		if err != nil {
			obs.LogJSON("error", "persist organization failed", map[string]any{"error": err})
		}
	}()
}

// Logout ends the session and clears persisted state. It is safe to call repeatedly.
func (s *Service) Logout(ctx context.Context) error {
	prev := s.store.Snapshot()
	err := s.store.Logout(ctx)
	s.stopFetch()
	s.router.Reset()
	obs.SetSessionActive(false)
	if prev.Authenticated() {
		_ = audit.LogEvent(withSession(ctx, prev), audit.EventLogout, nil)
	}
	return err
}

// Resume restores a session from a token persisted by an earlier process.
func (s *Service) Resume(ctx context.Context) (session.Snapshot, error) {
	if snap := s.store.Snapshot(); snap.Authenticated() {
		return snap, nil
	}
	tok, ok, err := s.store.PersistedToken(ctx)
	if err != nil {
		return s.store.Snapshot(), err
	}
	if !ok {
		return s.store.Snapshot(), ErrNoSavedSession
	}
	if tok.Expired(s.now()) {
		_ = s.store.Logout(ctx)
		_ = audit.LogEvent(ctx, audit.EventExpired, map[string]any{"resumed": false})
		return s.store.Snapshot(), session.ErrSessionExpired
	}

	gen, err := s.store.Begin()
	if err != nil {
		return s.store.Snapshot(), err
	}
	lctx, cancel := context.WithTimeout(ctx, s.loginTimeout)
	identity, err := s.authn.Me(lctx, tok)
	cancel()
	if err != nil {
		_, _ = s.store.Fail(gen, err)
		_ = s.store.Logout(ctx)
		obs.LogJSON("warn", "resume rejected", map[string]any{"error": err})
		return s.store.Snapshot(), err
	}

	org, err := s.store.PersistedOrganization(ctx)
	if err != nil {
		obs.LogJSON("warn", "read saved organization failed", map[string]any{"error": err})
	}
	if org != nil && org.ID != identity.OrganizationRef {
		org = nil
	}
	grant := session.Grant{
		Identity:       identity,
		Token:          tok,
		Organization:   org,
		ContextPending: org == nil && identity.OrganizationRef != "" && s.orgs != nil,
	}
	snap, err := s.store.Succeed(ctx, gen, grant)
	switch {
	case errors.Is(err, session.ErrPersist):
		obs.LogJSON("error", "persist session failed", map[string]any{"error": err})
	case err != nil:
		return snap, err
	}

	s.router.Reset()
	obs.SetSessionActive(true)
	_ = audit.LogEvent(withSession(ctx, snap), audit.EventResumed, nil)
	if snap.State == session.ContextPending {
		s.fetchContext(snap, identity.OrganizationRef)
	}
	return snap, nil
}

// Snapshot returns the current session after applying token expiry.
func (s *Service) Snapshot(ctx context.Context) session.Snapshot {
	return s.current(ctx)
}

// Navigate resolves the requested view for the current session. Every decision is
// recorded the same way, allowed or not.
func (s *Service) Navigate(ctx context.Context, requested guard.View) router.Location {
	snap := s.current(ctx)
	loc := s.router.NavigateAs(snap, requested)
	if snap.Authenticated() {
		_, known := guard.Required(loc.Requested)
		known = known || loc.Requested == guard.ViewDashboard
		obs.ObserveNavigation(string(loc.Requested), loc.Decision.String(), known)
		_ = audit.LogEvent(withSession(ctx, snap), audit.EventNavigation, map[string]any{
			"view":     string(loc.Requested),
			"decision": loc.Decision.String(),
		})
	}
	return loc
}

// Menu lists the views the current session may open.
func (s *Service) Menu(ctx context.Context) []router.MenuEntry {
	return s.router.MenuAs(s.current(ctx))
}

// Wait blocks until background organization fetches have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels background work and waits for it to stop.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) current(ctx context.Context) session.Snapshot {
	prev := s.store.Snapshot()
	expired, err := s.store.Expire(ctx, s.now())
	if err != nil {
		obs.LogJSON("error", "clear expired session failed", map[string]any{"error": err})
	}
	if expired {
		// Expire already bumped the generation, so a cancelled fetch is discarded.
		s.stopFetch()
		s.router.Reset()
		obs.SetSessionActive(false)
		_ = audit.LogEvent(withSession(ctx, prev), audit.EventExpired, nil)
	}
	return s.store.Snapshot()
}

func (s *Service) stopFetch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
}

func withSession(ctx context.Context, snap session.Snapshot) context.Context {
	if !snap.Authenticated() {
		return ctx
	}
	ctx = auth.ContextWithIdentity(ctx, snap.Identity)
	return auth.ContextWithSessionID(ctx, snap.ID)
}
