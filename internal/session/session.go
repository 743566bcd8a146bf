// internal/session/session.go
//
// Cookie-backed session storage for the resolved subsite ID.
//
// Context
// -------
// Resolution runs once per session: the outcome is persisted in one cookie
// and honoured by later requests until the session ends or the subsite is
// changed explicitly.  The Store is created per request and satisfies
// tenancy.SessionStore.
//
// The cookie holds only a numeric subsite ID.  Tampering is harmless for
// confidentiality (scoping is advisory routing state, and permission
// checks run independently), but a robust deployment would still
// HMAC-sign the value.
package session

import (
	"net/http"
	"strconv"
	"time"
)

const cookieName = "canopy_subsite"

// Store reads and writes the subsite cookie for one request.
type Store struct {
	w http.ResponseWriter
	r *http.Request

	// pending holds a value written during this request so reads in the
	// same request observe it before the cookie round-trips.
	pending *uint64
}

// New builds a Store bound to one request/response pair.
func New(w http.ResponseWriter, r *http.Request) *Store {
	return &Store{w: w, r: r}
}

// SubsiteID returns the session's resolved subsite ID, if any.
func (s *Store) SubsiteID() (uint64, bool) {
	if s.pending != nil {
		return *s.pending, true
	}
	c, err := s.r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(c.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// SetSubsiteID persists id for the remainder of the session.
func (s *Store) SetSubsiteID(id uint64) {
	s.pending = &id
	http.SetCookie(s.w, &http.Cookie{
		Name:     cookieName,
		Value:    strconv.FormatUint(id, 10),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(14 * 24 * time.Hour),
	})
}

// Clear removes the subsite cookie, forcing a fresh resolve on the next
// request.
func Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
