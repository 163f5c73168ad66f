package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"danaya.health/portal/internal/auth"
	"danaya.health/portal/internal/guard"
	"danaya.health/portal/internal/portal"
	"danaya.health/portal/internal/router"
	"danaya.health/portal/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	UserID     string `json:"user_id,omitempty"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	RoleLabel  string `json:"role_label"`
	Department string `json:"department"`
}

type sessionView struct {
	State         string            `json:"state"`
	Authenticated bool              `json:"authenticated"`
	SessionID     string            `json:"session_id,omitempty"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	User          *userView         `json:"user,omitempty"`
	Organization  map[string]string `json:"organization,omitempty"`
	Capabilities  map[string]bool   `json:"capabilities"`
	Notice        string            `json:"notice,omitempty"`
}

type locationView struct {
	Current     string            `json:"current"`
	Requested   string            `json:"requested"`
	Decision    string            `json:"decision"`
	Affordances guard.Affordances `json:"affordances"`
	Notice      string            `json:"notice,omitempty"`
}

type navigationView struct {
	Active string             `json:"active"`
	Items  []router.MenuEntry `json:"items"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeLogin(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := req.Username
	if strings.TrimSpace(email) == "" {
		email = req.Email
	}
	snap, err := a.portal.Login(r.Context(), email, req.Password)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(snap))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.portal.Logout(r.Context()); err != nil {
		// The session is already closed; only storage cleanup failed.
		writeError(w, r, http.StatusInternalServerError, "logout incomplete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(a.portal.Snapshot(r.Context())))
}

func (a *API) handleNavigation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items := a.portal.Menu(r.Context())
	if items == nil {
		items = []router.MenuEntry{}
	}
	nav := navigationView{Items: items}
	for _, it := range items {
		if it.Active {
			nav.Active = string(it.View)
		}
	}
	writeJSON(w, http.StatusOK, nav)
}

func (a *API) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v1/views/")
	if strings.Contains(strings.Trim(name, "/"), "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	loc := a.portal.Navigate(r.Context(), guard.ParseView(name))
	// A denial is a view like any other, so it is served with 200.
	writeJSON(w, http.StatusOK, locationView{
		Current:     string(loc.Current),
		Requested:   string(loc.Requested),
		Decision:    loc.Decision.String(),
		Affordances: loc.Affordances,
		Notice:      loc.Notice,
	})
}

func toSessionView(snap session.Snapshot) sessionView {
	caps := snap.Capabilities().Map()
	out := sessionView{
		State:         snap.State.String(),
		Authenticated: snap.Authenticated(),
		Capabilities:  make(map[string]bool, len(caps)),
	}
	for k, v := range caps {
		out.Capabilities[string(k)] = v
	}
	if !snap.Authenticated() {
		if snap.LastErr != nil {
			out.Notice = publicMessage(snap.LastErr)
		}
		return out
	}

	id := snap.Identity
	out.SessionID = snap.ID
	if !snap.StartedAt.IsZero() {
		started := snap.StartedAt
		out.StartedAt = &started
	}
	if !snap.Token.ExpiresAt.IsZero() {
		exp := snap.Token.ExpiresAt
		out.ExpiresAt = &exp
	}
	out.User = &userView{
		UserID:     id.UserID,
		FullName:   auth.Display(id.FullName),
		Email:      id.Email,
		Role:       string(id.Role),
		RoleLabel:  id.Role.Label(),
		Department: auth.Display(id.Department),
	}
	if snap.Organization != nil {
		out.Organization = snap.Organization.Summary()
	}
	if snap.State == session.ContextFailed {
		out.Notice = auth.ErrContextUnavailable.Error()
	}
	return out
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		return "session expired, please sign in again"
	case errors.Is(err, auth.ErrMissingCredentials):
		return "email and password are required"
	default:
		return auth.ErrInvalidCredentials.Error()
	}
}

func handleSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, r, http.StatusBadRequest, "email and password are required")
	case errors.Is(err, portal.ErrTooManyAttempts):
		w.Header().Set("Retry-After", "60")
		writeError(w, r, http.StatusTooManyRequests, "too many login attempts")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, session.ErrAlreadyAuthenticated):
		writeError(w, r, http.StatusConflict, "already signed in")
	case errors.Is(err, session.ErrLoginInProgress), errors.Is(err, session.ErrStale):
		writeError(w, r, http.StatusConflict, "login already in progress")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// decodeLogin accepts either the OAuth2 password form or a JSON body.
func decodeLogin(w http.ResponseWriter, r *http.Request, dst *loginRequest) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		return decodeJSON(w, r, dst)
	}
	if err := r.ParseForm(); err != nil {
		return errors.New("invalid form body")
	}
	dst.Username = r.PostForm.Get("username")
	dst.Email = r.PostForm.Get("email")
	dst.Password = r.PostForm.Get("password")
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
