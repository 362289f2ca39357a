// Package tenancy carries the resolved session principal and the active
// clinic selection through request context.
package tenancy

import "context"

type ctxKey string

const (
	principalKey ctxKey = "shifa.principal"
	clinicKey    ctxKey = "shifa.clinic"
)

// Principal is the authenticated user attached to a request.
type Principal struct {
	UserID string
	Email  string
	// Role is the user's global role ("user", "staff", "admin", "super_admin").
	Role string
}

// ActiveClinic is the clinic scope attached to a request after the guard
// validates the selection.
type ActiveClinic struct {
	ClinicID string
	// Role is the principal's role within the active clinic.
	Role string
}

// WithPrincipal stores the session principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the session principal if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.UserID != ""
}

// WithClinic stores the active clinic selection in context.
func WithClinic(ctx context.Context, c ActiveClinic) context.Context {
	return context.WithValue(ctx, clinicKey, c)
}

// ClinicFromContext extracts the active clinic selection if present.
func ClinicFromContext(ctx context.Context) (ActiveClinic, bool) {
	c, ok := ctx.Value(clinicKey).(ActiveClinic)
	return c, ok && c.ClinicID != ""
}
