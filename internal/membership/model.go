// Package membership relates users to clinics and answers role and
// capability questions for the active clinic.
package membership

import "time"

// Clinic-level roles. A user holds at most one role per clinic.
const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleNurse        = "nurse"
	RoleReceptionist = "receptionist"
	RoleAccountant   = "accountant"
	RoleStaff        = "staff"
)

// Membership relates a user to a clinic.
type Membership struct {
	UserID   string `json:"user_id"`
	ClinicID string `json:"clinic_id"`
	Role     string `json:"role"`
	// HasRelationship marks whether the membership is currently active.
	// Inactive memberships stay visible in listings but are never selectable.
	HasRelationship bool      `json:"has_relationship"`
	JoinedAt        time.Time `json:"joined_at"`

	// Denormalized clinic fields for listings.
	ClinicName   string `json:"clinic_name,omitempty"`
	ClinicNameAr string `json:"clinic_name_ar,omitempty"`
	ClinicCode   string `json:"clinic_code,omitempty"`
}

// ValidRole reports whether role is one of the clinic-level roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist, RoleAccountant, RoleStaff:
		return true
	}
	return false
}

// ActiveOnly filters a membership list down to selectable entries.
func ActiveOnly(memberships []Membership) []Membership {
	out := make([]Membership, 0, len(memberships))
	for _, m := range memberships {
		if m.HasRelationship {
			out = append(out, m)
		}
	}
	return out
}

// FindActive returns the active membership for clinicID, if any.
func FindActive(memberships []Membership, clinicID string) (Membership, bool) {
	for _, m := range memberships {
		if m.ClinicID == clinicID && m.HasRelationship {
			return m, true
		}
	}
	return Membership{}, false
}
