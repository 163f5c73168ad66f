// Package authn talks to the auth service and the facility registry on behalf of the
// portal. It only exchanges credentials for a token and identity; it never stores
// either.
package authn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"danaya.health/portal/internal/auth"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

var (
	errStatus     = errors.New("authn: unexpected status")
	errIncomplete = errors.New("authn: incomplete response")
	errInactive   = errors.New("authn: account disabled")
)

// Result is the outcome of a successful login. Organization is set when the auth
// service embedded it; otherwise OrganizationRef names the facility still to fetch.
type Result struct {
	Identity        auth.Identity
	Token           auth.Token
	Organization    *auth.Organization
	OrganizationRef string
}

// Authenticator exchanges credentials for a session grant.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (Result, error)
	Me(ctx context.Context, token auth.Token) (auth.Identity, error)
}

// OrganizationFetcher loads facility metadata from the registry.
type OrganizationFetcher interface {
	FetchOrganization(ctx context.Context, ref string) (auth.Organization, error)
}

// Client is the HTTP implementation of Authenticator and OrganizationFetcher.
type Client struct {
	authURL     string
	registryURL string
	http        *http.Client
	now         func() time.Time
}

// Option configures Client behavior.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request issued by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithClock overrides the time source used to compute token expiry.
func WithClock(fn func() time.Time) Option {
	return func(c *Client) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewClient returns a client for the auth service at authURL and the registry at
// registryURL. An empty registryURL falls back to authURL.
func NewClient(authURL, registryURL string, opts ...Option) *Client {
	authURL = strings.TrimRight(strings.TrimSpace(authURL), "/")
	registryURL = strings.TrimRight(strings.TrimSpace(registryURL), "/")
	if registryURL == "" {
		registryURL = authURL
	}
	c := &Client{
		authURL:     authURL,
		registryURL: registryURL,
		http:        &http.Client{Timeout: defaultTimeout},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string             `json:"access_token"`
	TokenType   string             `json:"token_type"`
	ExpiresIn   int64              `json:"expires_in"`
	User        *auth.Identity     `json:"user"`
	Hospital    *auth.Organization `json:"hospital"`
}

// Login submits the credentials as an OAuth2 password form. Blank input is rejected
// before any request is made; every other failure is an *auth.AuthError.
func (c *Client) Login(ctx context.Context, email, password string) (Result, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Result{}, auth.ErrMissingCredentials
	}

	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, auth.NewAuthError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var body tokenResponse
	if err := c.do(req, &body); err != nil {
		return Result{}, auth.NewAuthError(err)
	}
	if body.AccessToken == "" || body.User == nil {
		return Result{}, auth.NewAuthError(errIncomplete)
	}
	identity, err := normalizeIdentity(*body.User)
	if err != nil {
		return Result{}, auth.NewAuthError(err)
	}

	res := Result{
		Identity: identity,
		Token: auth.Token{
			Value:     body.AccessToken,
			Type:      body.TokenType,
			ExpiresAt: auth.TokenExpiry(body.AccessToken, body.ExpiresIn, c.now().UTC()),
		},
	}
	if body.Hospital != nil && body.Hospital.ID != "" {
		org := *body.Hospital
		res.Organization = &org
	} else {
		res.OrganizationRef = identity.OrganizationRef
	}
	return res, nil
}

// Me returns the identity that owns token. It is used to resume a persisted session.
func (c *Client) Me(ctx context.Context, token auth.Token) (auth.Identity, error) {
	if token.Empty() {
		return auth.Identity{}, auth.NewAuthError(auth.ErrInvalidToken)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL+"/users/me", nil)
	if err != nil {
		return auth.Identity{}, auth.NewAuthError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Accept", "application/json")

	var identity auth.Identity
	if err := c.do(req, &identity); err != nil {
		return auth.Identity{}, auth.NewAuthError(err)
	}
	identity, err = normalizeIdentity(identity)
	if err != nil {
		return auth.Identity{}, auth.NewAuthError(err)
	}
	return identity, nil
}

// FetchOrganization loads the facility ref from the registry. Failures are
// *auth.ContextFetchError.
func (c *Client) FetchOrganization(ctx context.Context, ref string) (auth.Organization, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return auth.Organization{}, auth.NewContextFetchError(ref, errIncomplete)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.registryURL+"/facilities/"+url.PathEscape(ref), nil)
	if err != nil {
		return auth.Organization{}, auth.NewContextFetchError(ref, err)
	}
	req.Header.Set("Accept", "application/json")

	var org auth.Organization
	if err := c.do(req, &org); err != nil {
		return auth.Organization{}, auth.NewContextFetchError(ref, err)
	}
	if org.ID == "" {
		org.ID = ref
	}
	return org, nil
}

func (c *Client) do(req *http.Request, target any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, body)
		return fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func normalizeIdentity(id auth.Identity) (auth.Identity, error) {
	id.Email = strings.TrimSpace(id.Email)
	if id.Email == "" || strings.TrimSpace(string(id.Role)) == "" {
		return auth.Identity{}, errIncomplete
	}
	if !id.Active {
		return auth.Identity{}, errInactive
	}
	if role, ok := auth.ParseRole(string(id.Role)); ok {
		id.Role = role
	}
	return id, nil
}
