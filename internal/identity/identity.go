// Package identity provides anonymous per-device identity primitives.
//
// Every request carries a user ID, either an explicit X-User-ID header (or
// user_id query parameter, which WebSocket clients use) or an anonymous
// cookie minted on first contact. The ID keys container ownership, so both
// forms are validated to a conservative charset before use.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	AnonCookieName   = "agentdock_anon_id"
	UserHeaderName   = "X-User-ID"
	userQueryParam   = "user_id"
	anonCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const userIDKey contextKey = iota

var (
	anonIDPattern     = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	explicitIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying the given user ID. Used by tests and
// by internal callers acting on behalf of a user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

// IsValidUserID reports whether id is acceptable as a container owner key.
// IDs made of nothing but dots are rejected: the ID names a directory under
// the host data root, and "." or ".." would resolve outside it.
func IsValidUserID(id string) bool {
	if strings.Trim(id, ".") == "" {
		return false
	}
	return anonIDPattern.MatchString(id) || explicitIDPattern.MatchString(id)
}

func explicitUserID(r *http.Request) string {
	id := r.Header.Get(UserHeaderName)
	if id == "" {
		id = r.URL.Query().Get(userQueryParam)
	}
	if id != "" && IsValidUserID(id) {
		return id
	}
	return ""
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// Middleware resolves the request's user ID and injects it into the context.
// An explicit header or query ID wins; otherwise an anonymous cookie identity
// is established.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := explicitUserID(r)
			if userID == "" {
				var err error
				userID, err = getOrCreateAnonID(w, r, isDev)
				if err != nil {
					http.Error(w, `{"error":"failed to establish identity"}`, http.StatusInternalServerError)
					return
				}
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
