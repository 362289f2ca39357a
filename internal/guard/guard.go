// Package guard decides, for every request to a protected route, whether to
// serve it, redirect to login, redirect to clinic selection, or deny access.
package guard

import (
	"net/http"
	"strings"

	"github.com/shifahealth/platform/internal/audit"
	"github.com/shifahealth/platform/internal/identity"
	"github.com/shifahealth/platform/internal/membership"
	"github.com/shifahealth/platform/internal/observability/metrics"
	"github.com/shifahealth/platform/internal/selection"
	"github.com/shifahealth/platform/internal/tenancy"
	"github.com/shifahealth/platform/pkg/logging"
)

// Redirect targets for interrupted navigations.
const (
	LoginPath        = "/login"
	SelectClinicPath = "/select-clinic"
)

// Guard decisions, used as metric labels and log fields.
const (
	DecisionAuthorized      = "authorized"
	DecisionUnauthenticated = "unauthenticated"
	DecisionNoClinics       = "no_clinics"
	DecisionUnselected      = "clinic_unselected"
	DecisionRoleDenied      = "role_denied"
	DecisionMembershipError = "membership_error"
)

// Options declare what a route requires.
type Options struct {
	// RequireClinic gates the route on an active clinic selection.
	RequireClinic bool
	// Roles, when set, restricts the route to these roles. The role checked
	// is the clinic-scoped one when RequireClinic is set, the global one
	// otherwise. Global admin tiers always pass.
	Roles []string
}

// Guard evaluates protected routes.
type Guard struct {
	issuer        *identity.TokenIssuer
	sessionCookie string
	memberships   membership.Repository
	selections    *selection.Service
	audit         *audit.Service
	metrics       *metrics.TenancyMetrics
	logger        *logging.Logger
}

// New creates a route guard. audit and metrics are optional.
func New(
	issuer *identity.TokenIssuer,
	sessionCookie string,
	memberships membership.Repository,
	selections *selection.Service,
	auditService *audit.Service,
	tenancyMetrics *metrics.TenancyMetrics,
	logger *logging.Logger,
) *Guard {
	if logger == nil {
		logger = logging.Default()
	}
	return &Guard{
		issuer:        issuer,
		sessionCookie: sessionCookie,
		memberships:   memberships,
		selections:    selections,
		audit:         auditService,
		metrics:       tenancyMetrics,
		logger:        logger,
	}
}

// RequireAuth protects a route that needs a session but no clinic context.
func (g *Guard) RequireAuth() func(http.Handler) http.Handler {
	return g.Protect(Options{})
}

// RequireClinic protects a route that needs an active clinic selection,
// optionally restricted to clinic roles.
func (g *Guard) RequireClinic(roles ...string) func(http.Handler) http.Handler {
	return g.Protect(Options{RequireClinic: true, Roles: roles})
}

// Protect builds middleware enforcing the given options. The checks run in
// a fixed order and the first failing one decides the response.
func (g *Guard) Protect(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := g.resolveSession(r)
			if !ok {
				g.unauthenticated(w, r)
				return
			}
			ctx := tenancy.WithPrincipal(r.Context(), principal)
			r = r.WithContext(ctx)

			if opts.RequireClinic {
				memberships, err := g.memberships.ListForUser(ctx, principal.UserID)
				if err != nil {
					// A failed fetch is not "zero clinics": redirecting here
					// would bounce a legitimately provisioned user.
					g.observe(DecisionMembershipError)
					g.logger.Error("membership fetch failed", "user_id", principal.UserID, "error", err)
					http.Error(w, `{"error": "memberships unavailable"}`, http.StatusServiceUnavailable)
					return
				}
				if len(memberships) == 0 {
					g.observe(DecisionNoClinics)
					g.redirectToSelection(w, r)
					return
				}

				active, ok := g.selections.Hydrate(r, principal, memberships)
				if !ok {
					g.observe(DecisionUnselected)
					g.redirectToSelection(w, r)
					return
				}
				r = r.WithContext(tenancy.WithClinic(r.Context(), active))

				if len(opts.Roles) > 0 && !g.roleAllowed(principal, active.Role, opts.Roles) {
					g.roleDenied(w, r, principal, active.ClinicID, opts.Roles)
					return
				}
			} else if len(opts.Roles) > 0 && !g.roleAllowed(principal, principal.Role, opts.Roles) {
				g.roleDenied(w, r, principal, "", opts.Roles)
				return
			}

			g.observe(DecisionAuthorized)
			next.ServeHTTP(w, r)
		})
	}
}

// HasRole reports whether the request's effective role is one of roles.
// Global admin tiers always pass. Exposed for handlers that branch on role
// after the guard has authorized the route.
func HasRole(r *http.Request, roles ...string) bool {
	principal, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		return false
	}
	if identity.IsAdminTier(principal.Role) {
		return true
	}
	effective := principal.Role
	if clinic, ok := tenancy.ClinicFromContext(r.Context()); ok {
		effective = clinic.Role
	}
	for _, role := range roles {
		if role == effective {
			return true
		}
	}
	return false
}

// HasPermission reports whether the request's clinic role carries the
// capability. Global admin tiers always pass.
func HasPermission(r *http.Request, permission string) bool {
	principal, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		return false
	}
	if identity.IsAdminTier(principal.Role) {
		return true
	}
	clinic, ok := tenancy.ClinicFromContext(r.Context())
	if !ok {
		return false
	}
	return membership.RoleHasPermission(clinic.Role, permission)
}

func (g *Guard) resolveSession(r *http.Request) (tenancy.Principal, bool) {
	token := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	} else if c, err := r.Cookie(g.sessionCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		return tenancy.Principal{}, false
	}
	claims, err := g.issuer.ParseSession(token)
	if err != nil {
		return tenancy.Principal{}, false
	}
	return tenancy.Principal{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, true
}

func (g *Guard) roleAllowed(principal tenancy.Principal, effectiveRole string, roles []string) bool {
	if identity.IsAdminTier(principal.Role) {
		return true
	}
	for _, role := range roles {
		if role == effectiveRole {
			return true
		}
	}
	return false
}

func (g *Guard) unauthenticated(w http.ResponseWriter, r *http.Request) {
	g.observe(DecisionUnauthenticated)
	g.stashRedirect(w, r, selection.CookieRedirectAfterLogin)
	if wantsJSON(r) {
		http.Error(w, `{"error": "unauthenticated"}`, http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusFound)
}

func (g *Guard) redirectToSelection(w http.ResponseWriter, r *http.Request) {
	g.stashRedirect(w, r, selection.CookieRedirectAfterSelection)
	if wantsJSON(r) {
		http.Error(w, `{"error": "clinic selection required"}`, http.StatusForbidden)
		return
	}
	http.Redirect(w, r, SelectClinicPath, http.StatusFound)
}

// roleDenied renders inline: the user is legitimately authenticated and
// clinic-scoped, so no redirect is issued.
func (g *Guard) roleDenied(w http.ResponseWriter, r *http.Request, principal tenancy.Principal, clinicID string, roles []string) {
	g.observe(DecisionRoleDenied)
	if err := g.audit.RecordAccessDenied(r.Context(), principal.UserID, clinicID, r.URL.Path, roles); err != nil {
		g.logger.Error("audit record for denied access failed", "user_id", principal.UserID, "error", err)
	}
	http.Error(w, `{"error": "access denied", "detail": "your role does not permit this page"}`, http.StatusForbidden)
}

// stashRedirect remembers the interrupted path unless the request already
// targets one of the bootstrap paths, which would loop the redirect.
func (g *Guard) stashRedirect(w http.ResponseWriter, r *http.Request, name string) {
	path := r.URL.Path
	if isBootstrapPath(path) {
		return
	}
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	g.selections.Cookies().StashRedirect(w, name, path)
}

func isBootstrapPath(path string) bool {
	switch path {
	case LoginPath, SelectClinicPath, "/logout":
		return true
	}
	return false
}

func (g *Guard) observe(decision string) {
	g.metrics.ObserveGuardDecision(decision)
}

func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}
