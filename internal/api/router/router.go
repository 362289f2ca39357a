// Package router assembles the HTTP surface: public auth endpoints, the
// guarded clinic switcher, and clinic-scoped admin routes.
package router

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shifahealth/platform/internal/audit"
	"github.com/shifahealth/platform/internal/auth"
	"github.com/shifahealth/platform/internal/clinics"
	"github.com/shifahealth/platform/internal/guard"
	httpmiddleware "github.com/shifahealth/platform/internal/http/middleware"
	"github.com/shifahealth/platform/internal/identity"
	"github.com/shifahealth/platform/internal/membership"
	"github.com/shifahealth/platform/internal/tenancy"
	"github.com/shifahealth/platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger  *logging.Logger
	Auth    *auth.Handler
	Clinics *clinics.Handler
	Members *clinics.MembersHandler
	Guard   *guard.Guard

	// Audit enables the platform-admin audit listing (optional).
	Audit *audit.Service

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Post("/login", cfg.Auth.Login)
		public.Post("/logout", cfg.Auth.Logout)
	})

	// Session-only routes: a clinic selection is not required here, these
	// are the pages a user lands on before picking one.
	r.Group(func(session chi.Router) {
		session.Use(cfg.Guard.RequireAuth())
		session.Get("/session", sessionInfo)
	})

	r.Route("/clinics", func(cr chi.Router) {
		// The switcher itself needs only a session: it is how a user gets
		// a clinic context in the first place.
		cr.Group(func(g chi.Router) {
			g.Use(cfg.Guard.RequireAuth())
			g.Get("/", cfg.Clinics.List)
			g.Post("/select", cfg.Clinics.Select)
			g.Post("/{clinicID}/switch", cfg.Clinics.Switch)
		})

		// Roster administration requires the clinic admin role in the
		// active clinic, and the path must match that clinic.
		cr.Route("/{clinicID}/members", func(mr chi.Router) {
			mr.Use(cfg.Guard.RequireClinic(membership.RoleAdmin))
			mr.Use(requireActiveClinicPath)
			mr.Get("/", cfg.Members.List)
			mr.Post("/", cfg.Members.Grant)
			mr.Delete("/{userID}", cfg.Members.Revoke)
			mr.Put("/{userID}/role", cfg.Members.ChangeRole)
		})
	})

	// Platform admin routes
	if cfg.Audit != nil {
		r.Group(func(admin chi.Router) {
			admin.Use(cfg.Guard.Protect(guard.Options{Roles: []string{identity.RoleAdmin, identity.RoleSuperAdmin}}))
			admin.Get("/admin/audit", auditList(cfg.Audit))
		})
	}

	return r
}

// sessionInfo describes the caller's session. The clinic context, if any,
// is reported by the switcher listing instead.
func sessionInfo(w http.ResponseWriter, r *http.Request) {
	principal, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "unauthenticated"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"user_id": principal.UserID,
		"email":   principal.Email,
		"role":    principal.Role,
	})
}

func auditList(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var types []audit.EventType
		if raw := r.URL.Query().Get("types"); raw != "" {
			for _, t := range strings.Split(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					types = append(types, audit.EventType(t))
				}
			}
		}
		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		events, err := svc.List(r.Context(), types, limit)
		if err != nil {
			http.Error(w, `{"error": "audit log unavailable"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"events": events})
	}
}
