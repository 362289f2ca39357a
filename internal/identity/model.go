// Package identity manages users, passwords, and the two credential scopes
// used by the platform: session tokens and clinic-scoped tokens.
package identity

import "time"

// Global roles. Clinic-level roles live in the membership package; the two
// admin tiers below additionally override clinic role checks everywhere.
const (
	RoleUser       = "user"
	RoleStaff      = "staff"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// User represents a platform account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdminTier reports whether a global role overrides clinic role checks.
func IsAdminTier(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}
