package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danaya.health/portal/internal/auth"
	"danaya.health/portal/internal/guard"
	"danaya.health/portal/internal/session"
)

type staticSession struct{ snap session.Snapshot }

func (s *staticSession) Snapshot() session.Snapshot { return s.snap }

func signedIn(role auth.Role) *staticSession {
	return &staticSession{snap: session.Snapshot{
		State:    session.Authenticated,
		Identity: auth.Identity{Email: "staff@danaya.bf", Role: role, Active: true},
	}}
}

func views(entries []MenuEntry) []guard.View {
	out := make([]guard.View, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.View)
	}
	return out
}

func TestUnauthenticatedAlwaysLogin(t *testing.T) {
	for _, state := range []session.State{session.Unauthenticated, session.Authenticating} {
		r := New(&staticSession{snap: session.Snapshot{State: state, Identity: auth.Identity{Role: auth.RoleDoctor}}})
		for _, v := range []guard.View{"", guard.ViewDashboard, guard.ViewPatients, "billing"} {
			loc := r.Navigate(v)
			assert.Equal(t, guard.ViewLogin, loc.Current, "state %s view %q", state, v)
		}
		assert.Empty(t, r.Menu())
	}
}

func TestPharmacistNavigation(t *testing.T) {
	r := New(signedIn(auth.RolePharmacist))

	assert.Equal(t, []guard.View{guard.ViewDashboard, guard.ViewPrescriptions}, views(r.Menu()))

	loc := r.Navigate(guard.ViewPatients)
	assert.Equal(t, guard.ViewAccessDenied, loc.Current)
	assert.Equal(t, guard.ViewPatients, loc.Requested)
	assert.Equal(t, guard.Deny, loc.Decision)
	assert.Contains(t, loc.Notice, "Pharmacist")

	loc = r.Navigate(guard.ViewPrescriptions)
	assert.Equal(t, guard.ViewPrescriptions, loc.Current)
	assert.Equal(t, guard.Allow, loc.Decision)
	assert.True(t, loc.Affordances.ReadOnly)
}

func TestDoctorNavigation(t *testing.T) {
	r := New(signedIn(auth.RoleDoctor))

	entries := r.Menu()
	require.Len(t, entries, len(menu))
	assert.Equal(t, guard.ViewDashboard, entries[0].View)
	assert.Equal(t, guard.ViewSettings, entries[len(entries)-1].View)

	loc := r.Navigate(guard.ViewSettings)
	assert.Equal(t, guard.ViewSettings, loc.Current)
	assert.Equal(t, guard.Allow, loc.Decision)
}

func TestDenialNoticeUniform(t *testing.T) {
	r := New(signedIn(auth.RoleLabTech))
	a := r.Navigate(guard.ViewPrescriptions)
	b := r.Navigate(guard.ViewSettings)
	assert.Equal(t, a.Notice, b.Notice)
	assert.Equal(t, DenialNotice(auth.RoleLabTech), a.Notice)
}

func TestDeepLinkCheckedIndependentlyOfMenu(t *testing.T) {
	r := New(signedIn(auth.RoleAdmin))
	assert.NotContains(t, views(r.Menu()), guard.ViewTelemedicine)
	assert.Equal(t, guard.ViewAccessDenied, r.Navigate(guard.ViewTelemedicine).Current)
}

func TestEmptyAndUnknownRequests(t *testing.T) {
	r := New(signedIn(auth.RoleNurse))

	loc := r.Navigate("")
	assert.Equal(t, guard.ViewDashboard, loc.Current)
	assert.Equal(t, guard.NotApplicable, loc.Decision)

	loc = r.Navigate("billing")
	assert.Equal(t, guard.View("billing"), loc.Current)
	assert.Equal(t, guard.NotApplicable, loc.Decision)
}

func TestActiveAndReset(t *testing.T) {
	r := New(signedIn(auth.RoleNurse))
	assert.Equal(t, guard.ViewDashboard, r.Active())

	r.Navigate(guard.ViewLabs)
	assert.Equal(t, guard.ViewLabs, r.Active())
	for _, e := range r.Menu() {
		assert.Equal(t, e.View == guard.ViewLabs, e.Active, "entry %s", e.View)
	}

	r.Navigate(guard.ViewSettings)
	assert.Equal(t, guard.ViewSettings, r.Active(), "denied requests still move the marker")

	r.Reset()
	assert.Equal(t, guard.ViewDashboard, r.Active())
}

func TestContextFailedKeepsAccess(t *testing.T) {
	src := signedIn(auth.RoleDoctor)
	src.snap.State = session.ContextFailed
	r := New(src)
	assert.Equal(t, guard.ViewPatients, r.Navigate(guard.ViewPatients).Current)

	src = signedIn(auth.RolePharmacist)
	src.snap.State = session.ContextFailed
	r = New(src)
	assert.Equal(t, guard.ViewAccessDenied, r.Navigate(guard.ViewPatients).Current)
}
