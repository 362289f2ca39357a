package selection

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func requestWithCookies(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/patients", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func TestSetAndReadSelection(t *testing.T) {
	store := NewCookieStore(false, time.Hour)
	w := httptest.NewRecorder()

	store.SetSelection(w, "clinic-1", "token-abc")

	cookies := w.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected both selection cookies, got %d", len(cookies))
	}

	r := requestWithCookies(cookies...)
	if got := store.ClinicID(r); got != "clinic-1" {
		t.Errorf("ClinicID = %q", got)
	}
	if got := store.ClinicToken(r); got != "token-abc" {
		t.Errorf("ClinicToken = %q", got)
	}
	if !store.HasSelection(r) {
		t.Error("expected HasSelection to be true")
	}

	for _, c := range cookies {
		if !c.HttpOnly {
			t.Errorf("cookie %s must be HttpOnly", c.Name)
		}
		if c.MaxAge != int(time.Hour.Seconds()) {
			t.Errorf("cookie %s MaxAge = %d", c.Name, c.MaxAge)
		}
	}
}

func TestClearSelectionExpiresBothCookies(t *testing.T) {
	store := NewCookieStore(false, time.Hour)
	w := httptest.NewRecorder()

	store.ClearSelection(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected both cookies cleared, got %d", len(cookies))
	}
	for _, c := range cookies {
		if c.MaxAge != -1 {
			t.Errorf("cookie %s not expired, MaxAge=%d", c.Name, c.MaxAge)
		}
	}
}

func TestHasSelectionRequiresBothHalves(t *testing.T) {
	store := NewCookieStore(false, time.Hour)

	r := requestWithCookies(&http.Cookie{Name: "clinic_id", Value: "clinic-1"})
	if store.HasSelection(r) {
		t.Error("clinic id without token must not count as a selection")
	}

	r = requestWithCookies(&http.Cookie{Name: "clinic_token", Value: "tok"})
	if store.HasSelection(r) {
		t.Error("token without clinic id must not count as a selection")
	}
}

func TestPopRedirectReadsAndClears(t *testing.T) {
	store := NewCookieStore(false, time.Hour)

	w := httptest.NewRecorder()
	store.StashRedirect(w, CookieRedirectAfterLogin, "/appointments/today")

	r := requestWithCookies(w.Result().Cookies()...)
	w2 := httptest.NewRecorder()
	if got := store.PopRedirect(w2, r, CookieRedirectAfterLogin); got != "/appointments/today" {
		t.Fatalf("PopRedirect = %q", got)
	}

	cleared := w2.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge != -1 {
		t.Fatalf("expected redirect cookie to be cleared, got %+v", cleared)
	}

	// Nothing stashed: no clear cookie written.
	w3 := httptest.NewRecorder()
	if got := store.PopRedirect(w3, httptest.NewRequest(http.MethodGet, "/", nil), CookieRedirectAfterLogin); got != "" {
		t.Fatalf("expected empty redirect, got %q", got)
	}
	if len(w3.Result().Cookies()) != 0 {
		t.Fatal("expected no cookie writes when nothing stashed")
	}
}
