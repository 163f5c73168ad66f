package auth

// CapabilitySet reports, for every catalogued capability, whether it is granted.
// The zero value denies everything.
type CapabilitySet struct {
	grants map[Capability]bool
}

func emptySet() CapabilitySet {
	grants := make(map[Capability]bool, len(BuiltinCapabilities))
	for _, c := range BuiltinCapabilities {
		grants[c.Key] = false
	}
	return CapabilitySet{grants: grants}
}

func (s CapabilitySet) clone() CapabilitySet {
	out := emptySet()
	for k, v := range s.grants {
		out.grants[k] = v
	}
	return out
}

// Has reports whether c is granted. Unknown capabilities are never granted.
func (s CapabilitySet) Has(c Capability) bool {
	return s.grants[c]
}

// Granted returns the granted capabilities in catalogue order.
func (s CapabilitySet) Granted() []Capability {
	var out []Capability
	for _, c := range BuiltinCapabilities {
		if s.grants[c.Key] {
			out = append(out, c.Key)
		}
	}
	return out
}

// Map returns a copy of the full capability map, including denied entries.
func (s CapabilitySet) Map() map[Capability]bool {
	out := make(map[Capability]bool, len(BuiltinCapabilities))
	for _, c := range BuiltinCapabilities {
		out[c.Key] = s.grants[c.Key]
	}
	return out
}

// Equal reports whether both sets grant exactly the same capabilities.
func (s CapabilitySet) Equal(other CapabilitySet) bool {
	for _, c := range BuiltinCapabilities {
		if s.grants[c.Key] != other.grants[c.Key] {
			return false
		}
	}
	return true
}

// Principal is an identity together with the capabilities derived from its role.
type Principal struct {
	Identity     Identity
	Capabilities CapabilitySet
}

// NewPrincipal derives the capability set for identity.
func NewPrincipal(identity Identity) Principal {
	return Principal{Identity: identity, Capabilities: CapabilitiesFor(identity.Role)}
}

// HasCapability reports whether the principal may exercise c.
func (p Principal) HasCapability(c Capability) bool {
	return p.Capabilities.Has(c)
}
