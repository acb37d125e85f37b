// AngelaMos | 2026
// origin.go

package core

import (
	"net/http"
	"net/url"
	"strings"
)

// RequestOrigin returns the scheme://host the browser used to reach us.
// Behind the proxy the Host header is internal, so it is never consulted.
// Fallback order: Origin, X-Forwarded-Host (+X-Forwarded-Proto), Referer,
// then the configured public URL.
func RequestOrigin(r *http.Request, fallback string) string {
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" &&
		origin != "null" {
		return strings.TrimRight(origin, "/")
	}

	if host := forwardedValue(r.Header.Get("X-Forwarded-Host")); host != "" {
		proto := forwardedValue(r.Header.Get("X-Forwarded-Proto"))
		if proto == "" {
			proto = "https"
		}
		return proto + "://" + host
	}

	if referer := r.Header.Get("Referer"); referer != "" {
		if u, err := url.Parse(referer); err == nil &&
			u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}

	return strings.TrimRight(fallback, "/")
}

// forwardedValue takes the first hop of a possibly comma-joined header.
func forwardedValue(v string) string {
	if v == "" {
		return ""
	}
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
