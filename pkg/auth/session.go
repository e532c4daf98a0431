package auth

import (
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/sessions"
)

// Store is the session store backing the debug console's cookie session.
var Store *sessions.CookieStore

// SessionName is the name of the debug console session cookie.
const SessionName = "console-session"

// Session value keys.
const (
	SessionKeyAuthenticated = "authenticated"
	SessionKeyUser          = "user"
)

// InitSessionStore initializes the cookie-based session store for the debug
// console.
//
// The secret parameter is used to sign session cookies. It can be any
// passphrase - it will be SHA-256 hashed to derive a 32-byte key.
// The secret must be consistent across server restarts.
//
// Security settings:
// - HttpOnly: true (inaccessible to JavaScript)
// - Secure: per derived cookie settings
// - SameSite: Strict (prevents CSRF)
func InitSessionStore(secret string, settings CookieSettings) {
	// Hash the secret to get a consistent 32-byte key
	key := sha256.Sum256([]byte(secret))

	Store = sessions.NewCookieStore(key[:])
	Store.Options = &sessions.Options{
		Path:     "/",
		Domain:   settings.Domain,
		MaxAge:   3600, // 1 hour console session
		HttpOnly: true,
		Secure:   settings.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// GetSession retrieves the console session from the request.
// Creates a new session if one doesn't exist.
func GetSession(r *http.Request) (*sessions.Session, error) {
	return Store.Get(r, SessionName)
}

// SaveSession saves the session to the response.
func SaveSession(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	return session.Save(r, w)
}
