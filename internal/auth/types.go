package auth

import (
	"encoding/json"
	"strings"
	"time"
)

// Placeholder is rendered for organization fields the registry did not supply.
const Placeholder = "—"

// Identity is the authenticated staff member as reported by the auth service.
type Identity struct {
	UserID          string `json:"user_id"`
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Role            Role   `json:"role"`
	OrganizationRef string `json:"hospital_id,omitempty"`
	Department      string `json:"department,omitempty"`
	Active          bool   `json:"is_active"`
}

// UnmarshalJSON treats a missing is_active as an active account. Only an
// explicit false disables it.
func (id *Identity) UnmarshalJSON(data []byte) error {
	type wire Identity
	w := wire{Active: true}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*id = Identity(w)
	return nil
}

// Organization is the facility the identity belongs to. Every field is optional.
type Organization struct {
	ID         string `json:"id"`
	ShortCode  string `json:"short_code,omitempty"`
	Name       string `json:"name,omitempty"`
	Type       string `json:"type,omitempty"`
	Level      string `json:"level,omitempty"`
	Ownership  string `json:"ownership,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	Address    string `json:"address,omitempty"`
	RegionID   string `json:"region_id,omitempty"`
	RegionName string `json:"region_name,omitempty"`
	LogoURL    string `json:"logo_url,omitempty"`
	Status     string `json:"status,omitempty"`
}

var facilityColors = map[string]string{
	"CHU":  "#0047AB",
	"CHR":  "#00A651",
	"CMA":  "#FDB813",
	"CSPS": "#20B2AA",
}

const defaultFacilityColor = "#0047AB"

// Display returns v, or the placeholder when v is blank.
func Display(v string) string {
	if strings.TrimSpace(v) == "" {
		return Placeholder
	}
	return v
}

// Initials returns the two-letter badge derived from the short code or name.
func (o Organization) Initials() string {
	src := strings.TrimSpace(o.ShortCode)
	if src == "" {
		src = strings.TrimSpace(o.Name)
	}
	if src == "" {
		return Placeholder
	}
	r := []rune(strings.ToUpper(src))
	if len(r) > 2 {
		r = r[:2]
	}
	return string(r)
}

// Color maps the facility type to its badge colour.
func (o Organization) Color() string {
	if c, ok := facilityColors[strings.ToUpper(strings.TrimSpace(o.Type))]; ok {
		return c
	}
	return defaultFacilityColor
}

// Summary renders the organization with placeholders for missing fields.
func (o Organization) Summary() map[string]string {
	return map[string]string{
		"id":        Display(o.ID),
		"name":      Display(o.Name),
		"type":      Display(o.Type),
		"level":     Display(o.Level),
		"ownership": Display(o.Ownership),
		"region":    Display(o.RegionName),
		"city":      Display(o.City),
		"district":  Display(o.District),
		"initials":  o.Initials(),
		"color":     o.Color(),
	}
}

// Token is the opaque access credential owned by the session.
type Token struct {
	Value     string    `json:"access_token"`
	Type      string    `json:"token_type,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Empty reports whether no credential is held.
func (t Token) Empty() bool {
	return strings.TrimSpace(t.Value) == ""
}

// Expired reports whether the token carries an expiry that has passed at now.
func (t Token) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}
