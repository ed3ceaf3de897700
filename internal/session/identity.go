// Package session provides session identity and per-session serialization.
package session

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	// CookieName carries the session ID between visits from one browser.
	CookieName = "courtside_session_id"
	// HeaderName lets API callers pin an explicit session.
	HeaderName = "X-Session-ID"
	// DefaultID is the shared session used when a caller supplies nothing.
	DefaultID = "default"

	cookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const sessionIDKey contextKey = iota

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// IDFromContext extracts the session ID from the request context.
func IDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultID
}

// Sanitize validates a caller-supplied session ID, falling back to the
// default shared session on anything suspicious.
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultID
	}
	return id
}

func idFromRequest(r *http.Request) string {
	if sid := r.Header.Get(HeaderName); sid != "" {
		return Sanitize(sid)
	}
	if sid := r.URL.Query().Get("session_id"); sid != "" {
		return Sanitize(sid)
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return Sanitize(c.Value)
	}
	return DefaultID
}

// Middleware resolves the session ID for each request and stores it in the
// request context. Explicit IDs are refreshed as a cookie so a browser keeps
// its session across page loads.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := idFromRequest(r)

			if sessionID != DefaultID {
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(cookieMaxAge.Seconds()),
					Expires:  time.Now().Add(cookieMaxAge),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
					Secure:   !isDev,
				})
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
