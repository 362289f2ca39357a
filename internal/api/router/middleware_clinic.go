package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shifahealth/platform/internal/tenancy"
)

// requireActiveClinicPath rejects clinic-scoped requests whose path names a
// clinic other than the caller's active one. The clinic token only covers
// the selected clinic; reaching into another is always a hard failure.
func requireActiveClinicPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clinicID := chi.URLParam(r, "clinicID")
		active, ok := tenancy.ClinicFromContext(r.Context())
		if !ok || clinicID == "" || active.ClinicID != clinicID {
			http.Error(w, `{"error": "request is outside the active clinic"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
