// Package router maps navigation requests to the view that is actually shown. Every
// request is checked by the guard, whether it came from the menu or a deep link.
package router

import (
	"fmt"
	"sync"

	"danaya.health/portal/internal/auth"
	"danaya.health/portal/internal/guard"
	"danaya.health/portal/internal/session"
)

// SessionSource provides the current session for each navigation.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// Location is the result of a navigation.
type Location struct {
	Current     guard.View        `json:"current"`
	Requested   guard.View        `json:"requested"`
	Decision    guard.Decision    `json:"-"`
	Affordances guard.Affordances `json:"affordances"`
	Notice      string            `json:"notice,omitempty"`
}

// MenuEntry is one navigation item the current session may open.
type MenuEntry struct {
	View   guard.View `json:"view"`
	Label  string     `json:"label"`
	Icon   string     `json:"icon,omitempty"`
	Active bool       `json:"active"`
}

var menu = []MenuEntry{
	{View: guard.ViewDashboard, Label: "Dashboard", Icon: "home"},
	{View: guard.ViewPatients, Label: "Patients", Icon: "users"},
	{View: guard.ViewAppointments, Label: "Appointments", Icon: "calendar"},
	{View: guard.ViewLabs, Label: "Lab Results", Icon: "flask"},
	{View: guard.ViewPrescriptions, Label: "Prescriptions", Icon: "pill"},
	{View: guard.ViewTelemedicine, Label: "Telemedicine", Icon: "video"},
	{View: guard.ViewSettings, Label: "Settings", Icon: "settings"},
}

// Router keeps the navigation state of the single portal session.
type Router struct {
	sessions SessionSource

	mu     sync.Mutex
	active guard.View
}

// New returns a router reading sessions from src, positioned on the dashboard.
func New(src SessionSource) *Router {
	return &Router{sessions: src, active: guard.ViewDashboard}
}

// Navigate resolves requested against the current session.
func (r *Router) Navigate(requested guard.View) Location {
	return r.NavigateAs(r.sessions.Snapshot(), requested)
}

// NavigateAs resolves requested for snap. Callers that already hold a snapshot use it
// to avoid reading the session twice.
func (r *Router) NavigateAs(snap session.Snapshot, requested guard.View) Location {
	if requested == "" {
		requested = guard.ViewDashboard
	}
	if !snap.Authenticated() {
		return Location{Current: guard.ViewLogin, Requested: requested, Decision: guard.Deny}
	}

	r.mu.Lock()
	r.active = requested
	r.mu.Unlock()

	caps := snap.Capabilities()
	decision := guard.Evaluate(requested, caps)
	if decision == guard.Deny {
		return Location{
			Current:   guard.ViewAccessDenied,
			Requested: requested,
			Decision:  decision,
			Notice:    DenialNotice(snap.Identity.Role),
		}
	}
	return Location{
		Current:     requested,
		Requested:   requested,
		Decision:    decision,
		Affordances: guard.AffordancesFor(requested, caps),
	}
}

// Active returns the last requested view.
func (r *Router) Active() guard.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Reset returns navigation to the dashboard.
func (r *Router) Reset() {
	r.mu.Lock()
	r.active = guard.ViewDashboard
	r.mu.Unlock()
}

// Menu lists the entries the current session may open, in display order.
func (r *Router) Menu() []MenuEntry {
	return r.MenuAs(r.sessions.Snapshot())
}

// MenuAs lists the entries snap may open. Unauthenticated sessions get no menu.
func (r *Router) MenuAs(snap session.Snapshot) []MenuEntry {
	if !snap.Authenticated() {
		return nil
	}
	caps := snap.Capabilities()
	active := r.Active()
	out := make([]MenuEntry, 0, len(menu))
	for _, e := range menu {
		if !guard.CanAccess(e.View, caps) {
			continue
		}
		e.Active = e.View == active
		out = append(out, e)
	}
	return out
}

// DenialNotice is the message shown for every denied view.
func DenialNotice(role auth.Role) string {
	return fmt.Sprintf("You don't have permission to access this page. Your role (%s) does not have the required permissions.", role.Label())
}
