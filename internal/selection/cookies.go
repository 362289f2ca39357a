// Package selection owns the active clinic selection: which clinic a session
// operates in, the clinic-scoped token that authorizes it, and the cookies
// that carry both across requests.
package selection

import (
	"net/http"
	"time"
)

// Cookie names. The selection pair is persisted outside the session cookie
// so it survives reloads and expires independently of the session.
const (
	cookieClinicID    = "clinic_id"
	cookieClinicToken = "clinic_token"

	// Redirect-target stash, consumed after login / clinic selection.
	CookieRedirectAfterLogin     = "redirectAfterLogin"
	CookieRedirectAfterSelection = "redirectAfterClinicSelection"
)

// CookieStore reads and writes the selection cookies. Only the selection
// service writes the clinic pair; everything else treats it as read-only.
type CookieStore struct {
	secure bool
	maxAge time.Duration
}

// NewCookieStore creates a cookie store. secure controls the Secure flag on
// all cookies; maxAge bounds the clinic selection lifetime and should match
// the clinic token TTL.
func NewCookieStore(secure bool, maxAge time.Duration) *CookieStore {
	return &CookieStore{secure: secure, maxAge: maxAge}
}

// ClinicID returns the persisted clinic id, or "" when absent.
func (s *CookieStore) ClinicID(r *http.Request) string {
	return cookieValue(r, cookieClinicID)
}

// ClinicToken returns the persisted clinic-scoped token, or "" when absent.
func (s *CookieStore) ClinicToken(r *http.Request) string {
	return cookieValue(r, cookieClinicToken)
}

// HasSelection reports whether both halves of the selection are present.
func (s *CookieStore) HasSelection(r *http.Request) bool {
	return s.ClinicID(r) != "" && s.ClinicToken(r) != ""
}

// SetSelection writes the clinic pair. Both cookies are written together;
// a selection with only one half present is never produced by this store.
func (s *CookieStore) SetSelection(w http.ResponseWriter, clinicID, token string) {
	http.SetCookie(w, s.cookie(cookieClinicID, clinicID, s.maxAge))
	http.SetCookie(w, s.cookie(cookieClinicToken, token, s.maxAge))
}

// ClearSelection removes the clinic pair.
func (s *CookieStore) ClearSelection(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(cookieClinicID, "", -time.Second))
	http.SetCookie(w, s.cookie(cookieClinicToken, "", -time.Second))
}

// StashRedirect stores the path a guard interrupted so the login or
// clinic-selection flow can return to it.
func (s *CookieStore) StashRedirect(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, s.cookie(name, path, 10*time.Minute))
}

// PopRedirect reads a stashed redirect target and clears it.
func (s *CookieStore) PopRedirect(w http.ResponseWriter, r *http.Request, name string) string {
	target := cookieValue(r, name)
	if target != "" {
		http.SetCookie(w, s.cookie(name, "", -time.Second))
	}
	return target
}

func (s *CookieStore) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.MaxAge = -1
	} else if maxAge > 0 {
		c.MaxAge = int(maxAge.Seconds())
	}
	return c
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
