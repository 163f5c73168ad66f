package auth

import "strings"

// Role is the tag the auth service assigns to a staff account.
type Role string

const (
	RoleDoctor     Role = "doctor"
	RoleNurse      Role = "nurse"
	RolePharmacist Role = "pharmacist"
	RoleLabTech    Role = "lab_tech"
	RoleAdmin      Role = "admin"
)

var roleLabels = map[Role]string{
	RoleDoctor:     "Doctor",
	RoleNurse:      "Nurse",
	RolePharmacist: "Pharmacist",
	RoleLabTech:    "Lab technician",
	RoleAdmin:      "Administrator",
}

// rolePermissions lists the granted capabilities per role. Anything absent is denied.
var rolePermissions = map[Role][]Capability{
	RoleDoctor: {
		CapViewPatients,
		CapEditPatients,
		CapViewLabs,
		CapViewPrescriptions,
		CapWritePrescriptions,
		CapViewAppointments,
		CapManageAppointments,
		CapAccessRemoteCare,
		CapViewSettings,
	},
	RoleNurse: {
		CapViewPatients,
		CapEditPatients,
		CapViewLabs,
		CapViewPrescriptions,
		CapViewAppointments,
		CapManageAppointments,
		CapAccessRemoteCare,
	},
	RolePharmacist: {
		CapViewPrescriptions,
	},
	RoleLabTech: {
		CapViewPatients,
		CapViewLabs,
	},
	RoleAdmin: {
		CapViewPatients,
		CapEditPatients,
		CapViewLabs,
		CapViewPrescriptions,
		CapWritePrescriptions,
		CapViewAppointments,
		CapManageAppointments,
		CapViewSettings,
	},
}

// roleTable is built once from rolePermissions and never written afterwards.
var roleTable = buildRoleTable()

func buildRoleTable() map[Role]CapabilitySet {
	table := make(map[Role]CapabilitySet, len(rolePermissions))
	for role, caps := range rolePermissions {
		set := emptySet()
		for _, c := range caps {
			set.grants[c] = true
		}
		table[role] = set
	}
	return table
}

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	return r, r.Known()
}

// Known reports whether r has an entry in the role table.
func (r Role) Known() bool {
	_, ok := roleTable[r]
	return ok
}

// Label returns a display name for r.
func (r Role) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	if r == "" {
		return "unknown"
	}
	return string(r)
}

// KnownRoles returns every role in the table in a fixed order.
func KnownRoles() []Role {
	return []Role{RoleDoctor, RoleNurse, RolePharmacist, RoleLabTech, RoleAdmin}
}

// CapabilitiesFor returns the capability set for role. Unknown roles get the empty set.
func CapabilitiesFor(role Role) CapabilitySet {
	role, _ = ParseRole(string(role))
	set, ok := roleTable[role]
	if !ok {
		return emptySet()
	}
	return set.clone()
}
