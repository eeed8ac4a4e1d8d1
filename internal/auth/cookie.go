package auth

import (
	"net/http"
	"regexp"
	"strings"
	"time"
)

const CookieName = "token"

var tokenPattern = regexp.MustCompile(`(?:^|;\s*)` + CookieName + `=([^;]+)`)

// SessionCookie carries a freshly issued token.
func SessionCookie(token string, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearedSessionCookie overwrites the session cookie with an empty value.
// MaxAge -1 is how net/http writes "Max-Age=0".
func ClearedSessionCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// TokenFromRequest recovers the session token. Hosts parse cookies
// differently, so the lookups run in order: the parsed cookie, a strict parse
// of the raw header, a pattern match over the raw header, and finally an
// Authorization bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}

	raw := strings.Join(r.Header.Values("Cookie"), "; ")
	if raw != "" {
		if cookies, err := http.ParseCookie(raw); err == nil {
			for _, c := range cookies {
				if c.Name == CookieName && c.Value != "" {
					return c.Value
				}
			}
		}
		if m := tokenPattern.FindStringSubmatch(raw); m != nil {
			if v := strings.Trim(strings.TrimSpace(m[1]), `"`); v != "" {
				return v
			}
		}
	}

	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
