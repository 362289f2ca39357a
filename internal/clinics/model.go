// Package clinics holds the clinic (tenant) entity and its storage.
package clinics

import "time"

// Clinic is an isolated organizational unit: a practice location with its
// own patients, staff, and data.
type Clinic struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// NameAr is the Arabic display name used by the RTL locale.
	NameAr    string    `json:"name_ar,omitempty"`
	Code      string    `json:"code"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
