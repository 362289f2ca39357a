package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpmiddleware "github.com/shifahealth/platform/internal/http/middleware"
	"github.com/shifahealth/platform/internal/identity"
	"github.com/shifahealth/platform/internal/selection"
	"github.com/shifahealth/platform/pkg/logging"
)

func newHandler(t *testing.T) (*Handler, *identity.TokenIssuer) {
	t.Helper()
	users := identity.NewInMemoryRepository()
	hash, err := identity.HashPassword("s3cret-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if _, err := users.Create(context.Background(), &identity.User{
		ID:           "user-1",
		Email:        "dr.salem@example.com",
		FullName:     "Dr. Salem",
		Role:         identity.RoleUser,
		PasswordHash: hash,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	issuer := identity.NewTokenIssuer("session-secret", "clinic-secret", time.Hour, time.Hour)
	cookies := selection.NewCookieStore(false, time.Hour)
	h := NewHandler(users, issuer, cookies, "shifa_session", time.Hour, false, nil, nil, nil, logging.Default())
	return h, issuer
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginSetsSessionAndDefaultsToClinicSelection(t *testing.T) {
	h, issuer := newHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(
		`{"email": "dr.salem@example.com", "password": "s3cret-password"}`))
	w := httptest.NewRecorder()
	h.Login(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	session := findCookie(w, "shifa_session")
	if session == nil || !session.HttpOnly {
		t.Fatalf("expected HttpOnly session cookie, got %+v", session)
	}
	claims, err := issuer.ParseSession(session.Value)
	if err != nil {
		t.Fatalf("session cookie does not parse: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if !strings.Contains(w.Body.String(), `"redirect_to":"/select-clinic"`) {
		t.Fatalf("fresh login must land on clinic selection, got %s", w.Body.String())
	}
	if findCookie(w, "clinic_id") != nil || findCookie(w, "clinic_token") != nil {
		t.Fatal("a fresh session must not carry a clinic selection")
	}
}

func TestLoginHonorsStashedRedirect(t *testing.T) {
	h, _ := newHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(
		`{"email": "dr.salem@example.com", "password": "s3cret-password"}`))
	r.AddCookie(&http.Cookie{Name: selection.CookieRedirectAfterLogin, Value: "/patients?page=2"})
	w := httptest.NewRecorder()
	h.Login(w, r)

	if !strings.Contains(w.Body.String(), `"redirect_to":"/patients?page=2"`) {
		t.Fatalf("expected stashed path honored, got %s", w.Body.String())
	}
	stash := findCookie(w, selection.CookieRedirectAfterLogin)
	if stash == nil || stash.MaxAge != -1 {
		t.Fatalf("stash cookie must be cleared after use, got %+v", stash)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	h, _ := newHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(
		`{"email": "dr.salem@example.com", "password": "wrong"}`))
	w := httptest.NewRecorder()
	h.Login(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if findCookie(w, "shifa_session") != nil {
		t.Fatal("no session cookie on failed login")
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	h, _ := newHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(
		`{"email": "nobody@example.com", "password": "whatever"}`))
	w := httptest.NewRecorder()
	h.Login(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown users must look like bad passwords, got %d", w.Code)
	}
}

func TestLoginThrottledAfterRepeatedAttempts(t *testing.T) {
	h, _ := newHandler(t)
	h.limiter = httpmiddleware.NewLoginLimiter(0.001, 2)

	attempt := func(email string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(
			`{"email": "`+email+`", "password": "wrong"}`))
		r.RemoteAddr = "10.0.0.1:40000"
		w := httptest.NewRecorder()
		h.Login(w, r)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := attempt("dr.salem@example.com"); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, w.Code)
		}
	}
	if w := attempt("dr.salem@example.com"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is spent, got %d", w.Code)
	}
	// The throttle is per account, not per address.
	if w := attempt("nobody@example.com"); w.Code != http.StatusUnauthorized {
		t.Fatalf("another account from the same address should not be throttled, got %d", w.Code)
	}
}

func TestLogoutClearsSessionAndSelection(t *testing.T) {
	h, issuer := newHandler(t)

	token, err := issuer.IssueSession(&identity.User{ID: "user-1", Role: identity.RoleUser})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/logout", nil)
	r.AddCookie(&http.Cookie{Name: "shifa_session", Value: token})
	w := httptest.NewRecorder()
	h.Logout(w, r)

	session := findCookie(w, "shifa_session")
	if session == nil || session.MaxAge != -1 {
		t.Fatalf("expected session cookie cleared, got %+v", session)
	}
	clinicID := findCookie(w, "clinic_id")
	clinicToken := findCookie(w, "clinic_token")
	if clinicID == nil || clinicID.MaxAge != -1 || clinicToken == nil || clinicToken.MaxAge != -1 {
		t.Fatal("logout must clear the clinic selection pair as well")
	}
}
