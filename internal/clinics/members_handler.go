package clinics

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shifahealth/platform/internal/audit"
	"github.com/shifahealth/platform/internal/identity"
	"github.com/shifahealth/platform/internal/membership"
	"github.com/shifahealth/platform/internal/notify"
	"github.com/shifahealth/platform/internal/selection"
	"github.com/shifahealth/platform/internal/tenancy"
	"github.com/shifahealth/platform/pkg/logging"
)

// MembersHandler manages a clinic's staff roster. Routes are mounted behind
// the guard with the clinic admin role, so handlers only do the work.
type MembersHandler struct {
	memberships membership.Repository
	users       identity.Repository
	clinics     Repository
	invalidator selection.Invalidator
	notify      *notify.Service
	audit       *audit.Service
	logger      *logging.Logger
}

// NewMembersHandler creates the roster handler. invalidator, notify, and
// audit are optional.
func NewMembersHandler(
	memberships membership.Repository,
	users identity.Repository,
	clinics Repository,
	invalidator selection.Invalidator,
	notifyService *notify.Service,
	auditService *audit.Service,
	logger *logging.Logger,
) *MembersHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &MembersHandler{
		memberships: memberships,
		users:       users,
		clinics:     clinics,
		invalidator: invalidator,
		notify:      notifyService,
		audit:       auditService,
		logger:      logger,
	}
}

// Routes returns the roster routes, mounted under /clinics/{clinicID}/members.
func (h *MembersHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Grant)
	r.Delete("/{userID}", h.Revoke)
	r.Put("/{userID}/role", h.ChangeRole)
	return r
}

// List returns every membership under the clinic, active or revoked.
// GET /clinics/{clinicID}/members
func (h *MembersHandler) List(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	members, err := h.memberships.ListForClinic(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to list clinic members", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "members unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"members": members})
}

type grantRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Grant adds a user to the clinic, reactivating a revoked membership for
// the same pair.
// POST /clinics/{clinicID}/members
func (h *MembersHandler) Grant(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		http.Error(w, `{"error": "email is required"}`, http.StatusBadRequest)
		return
	}
	if !membership.ValidRole(req.Role) {
		http.Error(w, `{"error": "invalid role"}`, http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			http.Error(w, `{"error": "no account for that email"}`, http.StatusNotFound)
			return
		}
		h.logger.Error("user lookup failed", "error", err)
		http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
		return
	}

	err = h.memberships.Grant(r.Context(), &membership.Membership{
		UserID:   user.ID,
		ClinicID: clinicID,
		Role:     req.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, membership.ErrAlreadyMember):
			http.Error(w, `{"error": "already an active member"}`, http.StatusConflict)
		case errors.Is(err, membership.ErrInvalidRole):
			http.Error(w, `{"error": "invalid role"}`, http.StatusBadRequest)
		default:
			h.logger.Error("grant failed", "clinic_id", clinicID, "user_id", user.ID, "error", err)
			http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	h.afterChange(r, audit.EventMembershipGranted, user.ID, clinicID, req.Role)
	if h.notify != nil {
		h.notify.MembershipGranted(r.Context(), user.Email, user.FullName, h.clinicName(r, clinicID), req.Role)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"user_id":   user.ID,
		"clinic_id": clinicID,
		"role":      req.Role,
	})
}

// Revoke deactivates a membership. The next guarded request from the
// affected user re-reads the roster and drops a matching selection.
// DELETE /clinics/{clinicID}/members/{userID}
func (h *MembersHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	userID := chi.URLParam(r, "userID")

	if err := h.memberships.Revoke(r.Context(), userID, clinicID); err != nil {
		if errors.Is(err, membership.ErrNotFound) {
			http.Error(w, `{"error": "membership not found"}`, http.StatusNotFound)
			return
		}
		h.logger.Error("revoke failed", "clinic_id", clinicID, "user_id", userID, "error", err)
		http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
		return
	}

	h.afterChange(r, audit.EventMembershipRevoked, userID, clinicID, "")
	if h.notify != nil {
		if user, err := h.users.GetByID(r.Context(), userID); err == nil {
			h.notify.MembershipRevoked(r.Context(), user.Email, user.FullName, h.clinicName(r, clinicID))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

type roleRequest struct {
	Role string `json:"role"`
}

// ChangeRole updates the member's clinic role. The change takes effect on
// the member's next request without a re-selection.
// PUT /clinics/{clinicID}/members/{userID}/role
func (h *MembersHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	userID := chi.URLParam(r, "userID")

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := h.memberships.ChangeRole(r.Context(), userID, clinicID, req.Role); err != nil {
		switch {
		case errors.Is(err, membership.ErrNotFound):
			http.Error(w, `{"error": "membership not found"}`, http.StatusNotFound)
		case errors.Is(err, membership.ErrNotActive):
			http.Error(w, `{"error": "membership is revoked"}`, http.StatusConflict)
		case errors.Is(err, membership.ErrInvalidRole):
			http.Error(w, `{"error": "invalid role"}`, http.StatusBadRequest)
		default:
			h.logger.Error("role change failed", "clinic_id", clinicID, "user_id", userID, "error", err)
			http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	h.afterChange(r, audit.EventRoleChanged, userID, clinicID, req.Role)
	if h.notify != nil {
		if user, err := h.users.GetByID(r.Context(), userID); err == nil {
			h.notify.RoleChanged(r.Context(), user.Email, user.FullName, h.clinicName(r, clinicID), req.Role)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"user_id":   userID,
		"clinic_id": clinicID,
		"role":      req.Role,
	})
}

// afterChange invalidates the affected user's cached roster and audits the
// mutation under the acting admin.
func (h *MembersHandler) afterChange(r *http.Request, event audit.EventType, targetUserID, clinicID, role string) {
	if h.invalidator != nil {
		h.invalidator.Invalidate(r.Context(), targetUserID)
	}

	actorID := ""
	if principal, ok := tenancy.PrincipalFromContext(r.Context()); ok {
		actorID = principal.UserID
	}
	details, _ := json.Marshal(map[string]string{"target_user_id": targetUserID, "role": role})
	if err := h.audit.Record(r.Context(), audit.Event{
		EventType: event,
		UserID:    actorID,
		ClinicID:  clinicID,
		Details:   details,
	}); err != nil {
		h.logger.Warn("audit write failed", "event", event, "error", err)
	}
}

func (h *MembersHandler) clinicName(r *http.Request, clinicID string) string {
	if h.clinics == nil {
		return ""
	}
	clinic, err := h.clinics.GetByID(r.Context(), clinicID)
	if err != nil {
		return ""
	}
	return clinic.Name
}
