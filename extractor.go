package tokenmiddleware

import (
	"net/http"
	"strings"
)

// HeaderSource returns the Authorization value to verify for a request.
// An empty string means no credential was presented.
type HeaderSource func(r *http.Request) string

// AuthorizationHeader reads the Authorization header.
func AuthorizationHeader(r *http.Request) string {
	return r.Header.Get("Authorization")
}

// CookieHeaderSource builds a HeaderSource that reads a bare credential from
// the named cookie and presents it as a bearer value.
func CookieHeaderSource(cookieName string) HeaderSource {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			return ""
		}
		return "Bearer " + cookie.Value
	}
}

// ParameterHeaderSource builds a HeaderSource that reads a bare credential
// from a query string parameter.
func ParameterHeaderSource(param string) HeaderSource {
	return func(r *http.Request) string {
		v := strings.TrimSpace(r.URL.Query().Get(param))
		if v == "" {
			return ""
		}
		return "Bearer " + v
	}
}

// MultiHeaderSource returns the first non-empty value of sources.
func MultiHeaderSource(sources ...HeaderSource) HeaderSource {
	return func(r *http.Request) string {
		for _, s := range sources {
			if v := s(r); v != "" {
				return v
			}
		}
		return ""
	}
}
