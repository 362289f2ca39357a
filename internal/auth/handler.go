// Package auth exposes the login and logout endpoints. Passwords are
// verified here; everything downstream works with the session token.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shifahealth/platform/internal/audit"
	"github.com/shifahealth/platform/internal/guard"
	httpmiddleware "github.com/shifahealth/platform/internal/http/middleware"
	"github.com/shifahealth/platform/internal/identity"
	"github.com/shifahealth/platform/internal/observability/metrics"
	"github.com/shifahealth/platform/internal/selection"
	"github.com/shifahealth/platform/pkg/logging"
)

// Handler serves /login and /logout.
type Handler struct {
	users         identity.Repository
	issuer        *identity.TokenIssuer
	cookies       *selection.CookieStore
	sessionCookie string
	sessionTTL    time.Duration
	secure        bool
	limiter       *httpmiddleware.LoginLimiter
	audit         *audit.Service
	metrics       *metrics.TenancyMetrics
	logger        *logging.Logger
}

// NewHandler creates the auth handler. limiter, audit and metrics are
// optional; a nil limiter disables login throttling.
func NewHandler(
	users identity.Repository,
	issuer *identity.TokenIssuer,
	cookies *selection.CookieStore,
	sessionCookie string,
	sessionTTL time.Duration,
	secure bool,
	limiter *httpmiddleware.LoginLimiter,
	auditService *audit.Service,
	tenancyMetrics *metrics.TenancyMetrics,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		users:         users,
		issuer:        issuer,
		cookies:       cookies,
		sessionCookie: sessionCookie,
		sessionTTL:    sessionTTL,
		secure:        secure,
		limiter:       limiter,
		audit:         auditService,
		metrics:       tenancyMetrics,
		logger:        logger,
	}
}

// Routes mounts the auth endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User       userView `json:"user"`
	RedirectTo string   `json:"redirect_to"`
}

type userView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Login verifies credentials and establishes a session. The clinic
// selection is a separate step; a fresh session never carries one.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, `{"error": "email and password are required"}`, http.StatusBadRequest)
		return
	}

	// Throttle before touching the password hash: bcrypt is the expensive
	// part a credential-stuffing run wants us to do.
	if h.limiter != nil && !h.limiter.AllowAttempt(req.Email, httpmiddleware.ClientIP(r)) {
		h.metrics.ObserveLogin("throttled")
		http.Error(w, `{"error": "too many login attempts"}`, http.StatusTooManyRequests)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			h.logger.Error("user lookup failed", "error", err)
			http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
			return
		}
		h.denyLogin(w)
		return
	}
	if !identity.CheckPassword(user.PasswordHash, req.Password) {
		h.denyLogin(w)
		return
	}

	token, err := h.issuer.IssueSession(user)
	if err != nil {
		h.logger.Error("session mint failed", "user_id", user.ID, "error", err)
		http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	redirectTo := h.cookies.PopRedirect(w, r, selection.CookieRedirectAfterLogin)
	if redirectTo == "" {
		redirectTo = guard.SelectClinicPath
	}

	if err := h.audit.Record(r.Context(), audit.Event{EventType: audit.EventLogin, UserID: user.ID}); err != nil {
		h.logger.Warn("audit write failed", "event", audit.EventLogin, "error", err)
	}
	h.metrics.ObserveLogin("success")
	h.logger.Info("user logged in", "user_id", user.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{
		User: userView{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		},
		RedirectTo: redirectTo,
	})
}

func (h *Handler) denyLogin(w http.ResponseWriter) {
	h.metrics.ObserveLogin("failure")
	http.Error(w, `{"error": "invalid email or password"}`, http.StatusUnauthorized)
}

// Logout drops the session and the clinic selection together so a later
// login cannot resume a stale clinic context.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.sessionCookie); err == nil {
		if claims, err := h.issuer.ParseSession(cookie.Value); err == nil {
			if err := h.audit.Record(r.Context(), audit.Event{EventType: audit.EventLogout, UserID: claims.Subject}); err != nil {
				h.logger.Warn("audit write failed", "event", audit.EventLogout, "error", err)
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.cookies.ClearSelection(w)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"redirect_to": guard.LoginPath})
}
