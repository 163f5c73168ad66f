package auth

// Capability names a page or action a role may be granted.
type Capability string

const (
	CapViewPatients       Capability = "view-patients"
	CapEditPatients       Capability = "edit-patients"
	CapViewLabs           Capability = "view-labs"
	CapViewPrescriptions  Capability = "view-prescriptions"
	CapWritePrescriptions Capability = "write-prescriptions"
	CapViewAppointments   Capability = "view-appointments"
	CapManageAppointments Capability = "manage-appointments"
	CapAccessRemoteCare   Capability = "access-remote-care"
	CapViewSettings       Capability = "view-settings"
)

// CapabilityInfo describes a catalogued capability.
type CapabilityInfo struct {
	Key   Capability
	Label string
}

// BuiltinCapabilities is the full catalogue in display order.
var BuiltinCapabilities = []CapabilityInfo{
	{Key: CapViewPatients, Label: "View Patients"},
	{Key: CapEditPatients, Label: "Edit Patients"},
	{Key: CapViewLabs, Label: "View Lab Results"},
	{Key: CapViewPrescriptions, Label: "View Prescriptions"},
	{Key: CapWritePrescriptions, Label: "Write Prescriptions"},
	{Key: CapViewAppointments, Label: "View Appointments"},
	{Key: CapManageAppointments, Label: "Manage Appointments"},
	{Key: CapAccessRemoteCare, Label: "Telemedicine"},
	{Key: CapViewSettings, Label: "System Settings"},
}

// Capabilities returns the catalogued capability keys in display order.
func Capabilities() []Capability {
	out := make([]Capability, len(BuiltinCapabilities))
	for i, c := range BuiltinCapabilities {
		out[i] = c.Key
	}
	return out
}

// Label returns the human label for c, or c itself when uncatalogued.
func (c Capability) Label() string {
	for _, info := range BuiltinCapabilities {
		if info.Key == c {
			return info.Label
		}
	}
	return string(c)
}
