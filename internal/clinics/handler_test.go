package clinics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shifahealth/platform/internal/identity"
	"github.com/shifahealth/platform/internal/membership"
	"github.com/shifahealth/platform/internal/selection"
	"github.com/shifahealth/platform/internal/tenancy"
	"github.com/shifahealth/platform/pkg/logging"
)

type switcherFixture struct {
	handler     *Handler
	issuer      *identity.TokenIssuer
	memberships *membership.InMemoryRepository
	router      chi.Router
}

func newSwitcherFixture(t *testing.T) *switcherFixture {
	t.Helper()
	issuer := identity.NewTokenIssuer("session-secret", "clinic-secret", time.Hour, time.Hour)
	repo := membership.NewInMemoryRepository()
	cookies := selection.NewCookieStore(false, time.Hour)
	selections := selection.NewService(repo, issuer, cookies, nil, nil, nil, logging.Default())
	h := NewHandler(repo, selections, logging.Default())

	// Stand-in for the guard: the principal is already resolved.
	principal := tenancy.Principal{UserID: "user-1", Email: "dr.salem@example.com", Role: identity.RoleUser}
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(tenancy.WithPrincipal(r.Context(), principal)))
		})
	})
	router.Mount("/clinics", h.Routes())

	return &switcherFixture{handler: h, issuer: issuer, memberships: repo, router: router}
}

func (f *switcherFixture) grant(t *testing.T, clinicID, name, role string, active bool) {
	t.Helper()
	err := f.memberships.Grant(context.Background(), &membership.Membership{
		UserID:     "user-1",
		ClinicID:   clinicID,
		Role:       role,
		ClinicName: name,
	})
	if err != nil {
		t.Fatalf("grant %s: %v", clinicID, err)
	}
	if !active {
		if err := f.memberships.Revoke(context.Background(), "user-1", clinicID); err != nil {
			t.Fatalf("revoke %s: %v", clinicID, err)
		}
	}
}

func (f *switcherFixture) clinicCookies(t *testing.T, clinicID, role string) []*http.Cookie {
	t.Helper()
	token, err := f.issuer.IssueClinicToken("user-1", clinicID, role)
	if err != nil {
		t.Fatalf("IssueClinicToken: %v", err)
	}
	return []*http.Cookie{
		{Name: "clinic_id", Value: clinicID},
		{Name: "clinic_token", Value: token},
	}
}

func (f *switcherFixture) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func TestListShowsAllMembershipsButOnlyActiveOnesSelectable(t *testing.T) {
	f := newSwitcherFixture(t)
	f.grant(t, "clinic-1", "Al Noor Clinic", membership.RoleDoctor, true)
	f.grant(t, "clinic-2", "Al Shifa Medical", membership.RoleNurse, true)
	f.grant(t, "clinic-3", "Downtown Dental", membership.RoleStaff, false)

	w := f.do(httptest.NewRequest(http.MethodGet, "/clinics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Memberships []struct {
			ClinicID   string `json:"clinic_id"`
			Selectable bool   `json:"selectable"`
			Active     bool   `json:"active"`
		} `json:"memberships"`
		SelectableCount int `json:"selectable_count"`
		TotalCount      int `json:"total_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalCount != 3 || resp.SelectableCount != 2 {
		t.Fatalf("expected 2 of 3 selectable, got %d of %d", resp.SelectableCount, resp.TotalCount)
	}
	for _, m := range resp.Memberships {
		if m.ClinicID == "clinic-3" && m.Selectable {
			t.Fatal("revoked membership must not be selectable")
		}
	}
}

func TestListMarksActiveClinicUnselectable(t *testing.T) {
	f := newSwitcherFixture(t)
	f.grant(t, "clinic-1", "Al Noor Clinic", membership.RoleDoctor, true)
	f.grant(t, "clinic-2", "Al Shifa Medical", membership.RoleNurse, true)

	r := httptest.NewRequest(http.MethodGet, "/clinics", nil)
	for _, c := range f.clinicCookies(t, "clinic-1", membership.RoleDoctor) {
		r.AddCookie(c)
	}
	w := f.do(r)

	var resp struct {
		Memberships []struct {
			ClinicID   string `json:"clinic_id"`
			Selectable bool   `json:"selectable"`
			Active     bool   `json:"active"`
		} `json:"memberships"`
		ActiveClinicID string `json:"active_clinic_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ActiveClinicID != "clinic-1" {
		t.Fatalf("expected clinic-1 active, got %q", resp.ActiveClinicID)
	}
	for _, m := range resp.Memberships {
		if m.ClinicID == "clinic-1" && (m.Selectable || !m.Active) {
			t.Fatalf("active clinic must be marked and never offered for self-switch: %+v", m)
		}
		if m.ClinicID == "clinic-2" && !m.Selectable {
			t.Fatal("the other active membership must stay selectable")
		}
	}
}

func TestSelectWritesCookiePair(t *testing.T) {
	f := newSwitcherFixture(t)
	f.grant(t, "clinic-1", "Al Noor Clinic", membership.RoleDoctor, true)

	r := httptest.NewRequest(http.MethodPost, "/clinics/select", strings.NewReader(`{"clinic_id": "clinic-1"}`))
	w := f.do(r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var hasID, hasToken bool
	for _, c := range w.Result().Cookies() {
		switch c.Name {
		case "clinic_id":
			hasID = c.Value == "clinic-1"
		case "clinic_token":
			hasToken = c.Value != ""
		}
	}
	if !hasID || !hasToken {
		t.Fatal("selection must write the clinic_id and clinic_token pair together")
	}
}

func TestSwitchToInaccessibleClinicIsDenied(t *testing.T) {
	f := newSwitcherFixture(t)
	f.grant(t, "clinic-1", "Al Noor Clinic", membership.RoleDoctor, true)

	r := httptest.NewRequest(http.MethodPost, "/clinics/clinic-9/switch", nil)
	for _, c := range f.clinicCookies(t, "clinic-1", membership.RoleDoctor) {
		r.AddCookie(c)
	}
	w := f.do(r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == "clinic_id" || c.Name == "clinic_token" {
			t.Fatal("a denied switch must not touch the selection cookies")
		}
	}
}

func TestSwitchToActiveClinicIsNoOp(t *testing.T) {
	f := newSwitcherFixture(t)
	f.grant(t, "clinic-1", "Al Noor Clinic", membership.RoleDoctor, true)

	r := httptest.NewRequest(http.MethodPost, "/clinics/clinic-1/switch", nil)
	for _, c := range f.clinicCookies(t, "clinic-1", membership.RoleDoctor) {
		r.AddCookie(c)
	}
	w := f.do(r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Switched   bool   `json:"switched"`
		RedirectTo string `json:"redirect_to"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Switched {
		t.Fatal("switching to the active clinic must be a no-op")
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatal("a no-op switch must not rewrite cookies")
	}
}
