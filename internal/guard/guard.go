// Package guard decides whether a capability set may open a view. It is the only
// place where page access is decided; callers never inspect capabilities directly.
package guard

import (
	"strings"

	"danaya.health/portal/internal/auth"
)

// View names a portal page.
type View string

const (
	ViewLogin         View = "login"
	ViewAccessDenied  View = "access-denied"
	ViewDashboard     View = "dashboard"
	ViewPatients      View = "patients"
	ViewAppointments  View = "appointments"
	ViewLabs          View = "labs"
	ViewPrescriptions View = "prescriptions"
	ViewTelemedicine  View = "telemedicine"
	ViewSettings      View = "settings"
)

// ParseView normalises a requested page name. Blank requests mean the dashboard.
func ParseView(s string) View {
	s = strings.Trim(strings.TrimSpace(strings.ToLower(s)), "/")
	if s == "" {
		return ViewDashboard
	}
	return View(s)
}

// Decision is the outcome of evaluating a view.
type Decision int

const (
	// NotApplicable means the view is not gated by any capability.
	NotApplicable Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "not-applicable"
	}
}

// Permits reports whether the view may be composed.
func (d Decision) Permits() bool { return d != Deny }

var requirements = map[View]auth.Capability{
	ViewPatients:      auth.CapViewPatients,
	ViewAppointments:  auth.CapViewAppointments,
	ViewLabs:          auth.CapViewLabs,
	ViewPrescriptions: auth.CapViewPrescriptions,
	ViewTelemedicine:  auth.CapAccessRemoteCare,
	ViewSettings:      auth.CapViewSettings,
}

// Required returns the capability that gates view, if any.
func Required(view View) (auth.Capability, bool) {
	c, ok := requirements[view]
	return c, ok
}

// Evaluate decides view against caps. Views without a requirement are NotApplicable.
func Evaluate(view View, caps auth.CapabilitySet) Decision {
	required, ok := requirements[view]
	if !ok {
		return NotApplicable
	}
	if caps.Has(required) {
		return Allow
	}
	return Deny
}

// CanAccess reports whether caps may open view.
func CanAccess(view View, caps auth.CapabilitySet) bool {
	return Evaluate(view, caps).Permits()
}

// Action is something a user can do on a page once it is open.
type Action string

const (
	ActionEditPatients      Action = "edit"
	ActionWritePrescription Action = "write"
	ActionManageAppointment Action = "manage"
)

var actions = map[View][]struct {
	action Action
	needs  auth.Capability
}{
	ViewPatients:      {{ActionEditPatients, auth.CapEditPatients}},
	ViewPrescriptions: {{ActionWritePrescription, auth.CapWritePrescriptions}},
	ViewAppointments:  {{ActionManageAppointment, auth.CapManageAppointments}},
}

// Affordances lists which in-page actions caps unlock on view.
type Affordances struct {
	Actions  map[Action]bool `json:"actions,omitempty"`
	ReadOnly bool            `json:"read_only"`
}

// Allows reports whether action is available.
func (a Affordances) Allows(action Action) bool { return a.Actions[action] }

// AffordancesFor computes the in-page actions for view. Views with actions but none
// granted are read-only.
func AffordancesFor(view View, caps auth.CapabilitySet) Affordances {
	defs, ok := actions[view]
	if !ok {
		return Affordances{}
	}
	out := Affordances{Actions: make(map[Action]bool, len(defs)), ReadOnly: true}
	for _, d := range defs {
		granted := caps.Has(d.needs)
		out.Actions[d.action] = granted
		if granted {
			out.ReadOnly = false
		}
	}
	return out
}
