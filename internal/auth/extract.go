package auth

import (
	"net/http"
	"strings"
)

// TokenFromRequest returns the bearer credential of an HTTP or upgrade
// request. The Authorization header wins over the cookie, which wins over
// the token query parameter. It returns "" when none is present.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}

	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}

	return strings.TrimSpace(r.URL.Query().Get("token"))
}
