package auth

import (
	"errors"
	"fmt"
	"testing"
)

func TestCapabilitiesForIsTotalAndDeterministic(t *testing.T) {
	for _, role := range KnownRoles() {
		first := CapabilitiesFor(role)
		second := CapabilitiesFor(role)
		if !first.Equal(second) {
			t.Fatalf("role %s: capability sets differ between calls", role)
		}
		m := first.Map()
		if len(m) != len(BuiltinCapabilities) {
			t.Fatalf("role %s: expected %d keys, got %d", role, len(BuiltinCapabilities), len(m))
		}
		for _, c := range Capabilities() {
			if _, ok := m[c]; !ok {
				t.Fatalf("role %s: capability %s missing", role, c)
			}
		}
	}
}

func TestCapabilitiesForUnknownRoleFailsClosed(t *testing.T) {
	for _, role := range []Role{"", "surgeon", "root", "pharmacist-lead"} {
		set := CapabilitiesFor(role)
		for c, granted := range set.Map() {
			if granted {
				t.Fatalf("role %q: capability %s unexpectedly granted", role, c)
			}
		}
		if len(set.Granted()) != 0 {
			t.Fatalf("role %q: expected nothing granted, got %v", role, set.Granted())
		}
	}

	var zero CapabilitySet
	if zero.Has(CapViewPatients) {
		t.Fatal("zero capability set must deny")
	}
}

func TestCapabilitiesForMatrix(t *testing.T) {
	cases := []struct {
		role    Role
		granted []Capability
		denied  []Capability
	}{
		{
			role:    RolePharmacist,
			granted: []Capability{CapViewPrescriptions},
			denied:  []Capability{CapViewPatients, CapWritePrescriptions, CapViewSettings, CapViewLabs},
		},
		{
			role:    RoleDoctor,
			granted: Capabilities(),
		},
		{
			role:    RoleNurse,
			granted: []Capability{CapViewPatients, CapEditPatients, CapAccessRemoteCare},
			denied:  []Capability{CapWritePrescriptions, CapViewSettings},
		},
		{
			role:    RoleLabTech,
			granted: []Capability{CapViewPatients, CapViewLabs},
			denied:  []Capability{CapEditPatients, CapViewPrescriptions, CapViewAppointments},
		},
		{
			role:    RoleAdmin,
			granted: []Capability{CapViewSettings, CapWritePrescriptions},
			denied:  []Capability{CapAccessRemoteCare},
		},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			set := CapabilitiesFor(tc.role)
			for _, c := range tc.granted {
				if !set.Has(c) {
					t.Fatalf("expected %s granted", c)
				}
			}
			for _, c := range tc.denied {
				if set.Has(c) {
					t.Fatalf("expected %s denied", c)
				}
			}
		})
	}
}

func TestCapabilitySetMapIsCopy(t *testing.T) {
	set := CapabilitiesFor(RolePharmacist)
	m := set.Map()
	m[CapViewPatients] = true
	if set.Has(CapViewPatients) {
		t.Fatal("mutating Map() result leaked into the set")
	}
	if CapabilitiesFor(RolePharmacist).Has(CapViewPatients) {
		t.Fatal("mutating Map() result leaked into the role table")
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("  Lab_Tech ")
	if !ok || role != RoleLabTech {
		t.Fatalf("ParseRole = %q, %v", role, ok)
	}
	if _, ok := ParseRole("janitor"); ok {
		t.Fatal("unexpected known role")
	}
	if RoleLabTech.Label() != "Lab technician" {
		t.Fatalf("unexpected label %q", RoleLabTech.Label())
	}
}

func TestPrincipalCapabilities(t *testing.T) {
	p := NewPrincipal(Identity{Email: "nurse@chu-ouaga.bf", Role: RoleNurse})
	if !p.HasCapability(CapEditPatients) {
		t.Fatal("expected nurse to edit patients")
	}
	if p.HasCapability(CapWritePrescriptions) {
		t.Fatal("nurse must not write prescriptions")
	}
}

func TestAuthErrorIsGeneric(t *testing.T) {
	causes := []error{
		errors.New("user not found"),
		errors.New("wrong password"),
		fmt.Errorf("dial tcp: connection refused"),
	}
	for _, cause := range causes {
		err := error(NewAuthError(cause))
		if err.Error() != "invalid credentials" {
			t.Fatalf("unexpected message %q", err.Error())
		}
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatal("expected errors.Is ErrInvalidCredentials")
		}
		if !errors.Is(err, cause) {
			t.Fatal("cause should stay reachable for logs")
		}
	}

	cerr := error(NewContextFetchError("BF-CHU-YALG", errors.New("503")))
	if !errors.Is(cerr, ErrContextUnavailable) {
		t.Fatal("expected ErrContextUnavailable")
	}
	var typed *ContextFetchError
	if !errors.As(cerr, &typed) || typed.Ref != "BF-CHU-YALG" {
		t.Fatalf("unexpected context error %#v", typed)
	}
}
