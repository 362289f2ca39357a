package clinics

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shifahealth/platform/internal/membership"
	"github.com/shifahealth/platform/internal/selection"
	"github.com/shifahealth/platform/internal/tenancy"
	"github.com/shifahealth/platform/pkg/logging"
)

// Handler serves the clinic switcher: the accessible clinic list and the
// switch/select operations.
type Handler struct {
	memberships membership.Repository
	selections  *selection.Service
	logger      *logging.Logger
}

// NewHandler creates a clinic switcher HTTP handler.
func NewHandler(memberships membership.Repository, selections *selection.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{memberships: memberships, selections: selections, logger: logger}
}

// Routes returns a chi router with the switcher routes. The guard mounts
// these behind an authenticated session.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/select", h.Select)
	r.Post("/{clinicID}/switch", h.Switch)
	return r
}

// switcherEntry is one row in the clinic switcher.
type switcherEntry struct {
	ClinicID   string `json:"clinic_id"`
	Name       string `json:"name"`
	NameAr     string `json:"name_ar,omitempty"`
	Code       string `json:"code"`
	Role       string `json:"role"`
	Selectable bool   `json:"selectable"`
	Active     bool   `json:"active"`
}

type listResponse struct {
	Memberships     []switcherEntry `json:"memberships"`
	SelectableCount int             `json:"selectable_count"`
	TotalCount      int             `json:"total_count"`
	ActiveClinicID  string          `json:"active_clinic_id,omitempty"`
}

// List returns the user's clinics. Every membership is visible; only
// has_relationship entries are selectable, and the active clinic is marked
// so the UI never offers a self-switch.
// GET /clinics
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "unauthenticated"}`, http.StatusUnauthorized)
		return
	}

	memberships, err := h.memberships.ListForUser(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("failed to list memberships", "user_id", principal.UserID, "error", err)
		http.Error(w, `{"error": "memberships unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	activeID := ""
	if active, ok := h.selections.Hydrate(r, principal, memberships); ok {
		activeID = active.ClinicID
	}

	resp := listResponse{
		Memberships:    make([]switcherEntry, 0, len(memberships)),
		TotalCount:     len(memberships),
		ActiveClinicID: activeID,
	}
	for _, m := range memberships {
		entry := switcherEntry{
			ClinicID:   m.ClinicID,
			Name:       m.ClinicName,
			NameAr:     m.ClinicNameAr,
			Code:       m.ClinicCode,
			Role:       m.Role,
			Selectable: m.HasRelationship && m.ClinicID != activeID,
			Active:     m.ClinicID == activeID,
		}
		if m.HasRelationship {
			resp.SelectableCount++
		}
		resp.Memberships = append(resp.Memberships, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode switcher response", "error", err)
	}
}

type switchResponse struct {
	ClinicID   string `json:"clinic_id"`
	Role       string `json:"role"`
	Switched   bool   `json:"switched"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// Switch changes the active clinic.
// POST /clinics/{clinicID}/switch
func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	h.change(w, r, clinicID, false)
}

type selectRequest struct {
	ClinicID string `json:"clinic_id"`
}

// Select performs the initial clinic selection after login.
// POST /clinics/select
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	h.change(w, r, req.ClinicID, true)
}

func (h *Handler) change(w http.ResponseWriter, r *http.Request, clinicID string, initial bool) {
	if clinicID == "" {
		http.Error(w, `{"error": "clinic_id required"}`, http.StatusBadRequest)
		return
	}
	principal, ok := tenancy.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "unauthenticated"}`, http.StatusUnauthorized)
		return
	}

	var (
		sel      *selection.Selection
		switched bool
		err      error
	)
	if initial {
		sel, switched, err = h.selections.Select(r.Context(), w, r, principal, clinicID)
	} else {
		sel, switched, err = h.selections.Switch(r.Context(), w, r, principal, clinicID)
	}
	if err != nil {
		if errors.Is(err, selection.ErrAccessDenied) {
			http.Error(w, `{"error": "clinic access denied"}`, http.StatusForbidden)
			return
		}
		h.logger.Error("clinic switch failed", "user_id", principal.UserID, "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	resp := switchResponse{ClinicID: sel.ClinicID, Role: sel.Role, Switched: switched}
	if switched {
		resp.RedirectTo = h.selections.Cookies().PopRedirect(w, r, selection.CookieRedirectAfterSelection)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode switch response", "error", err)
	}
}
