package http

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/utafrali/auth-service/internal/service"
)

// Cookie names used by the auth flows.
const (
	CookieRefreshToken = "refresh_token"
	CookieCSRFToken    = "csrf_token"
	CookieSessionID    = "session_id"
)

// HeaderCSRFSignature carries the CSRF proof the client echoes back. The
// signature is handed out in the response body, never in a cookie, so a
// forged cross-site request cannot produce it.
const HeaderCSRFSignature = "X-CSRF-Signature"

// refreshCookiePath scopes the refresh token cookie to the endpoints that
// actually consume it.
const refreshCookiePath = "/api/v1/auth"

// cookieWriter sets and clears the auth cookies with consistent attributes.
type cookieWriter struct {
	secure        bool
	refreshMaxAge time.Duration
}

func newCookieWriter(environment string, refreshExpiry time.Duration) *cookieWriter {
	return &cookieWriter{
		secure:        environment != "development",
		refreshMaxAge: refreshExpiry,
	}
}

// setAuth writes the refresh token, session id and CSRF token cookies.
func (c *cookieWriter) setAuth(w http.ResponseWriter, creds *service.Credentials) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieRefreshToken,
		Value:    creds.Tokens.RefreshToken,
		Path:     refreshCookiePath,
		MaxAge:   int(c.refreshMaxAge / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CookieSessionID,
		Value:    creds.SessionID,
		Path:     "/",
		MaxAge:   int(c.refreshMaxAge / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CookieCSRFToken,
		Value:    creds.CSRF.Token,
		Path:     "/",
		MaxAge:   int(c.refreshMaxAge / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearAuth expires all auth cookies.
func (c *cookieWriter) clearAuth(w http.ResponseWriter) {
	for _, ck := range []struct {
		name, path string
	}{
		{CookieRefreshToken, refreshCookiePath},
		{CookieSessionID, "/"},
		{CookieCSRFToken, "/"},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     ck.name,
			Value:    "",
			Path:     ck.path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// cookieValue returns the named cookie's value, or "" when absent.
func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// requestMeta extracts client metadata for sessions and the audit trail.
func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// clientIP prefers the first hop of X-Forwarded-For, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
