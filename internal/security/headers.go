package security

import (
	"net/http"
	"strconv"
	"strings"
)

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

// baseline is sent on every API response. Geolocation stays allowed for the
// same origin so the client can send a route origin.
var baseline = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "geolocation=(self), microphone=(), camera=()"},
	{"Cache-Control", "no-store"},
}

// Headers adds response hardening headers. HSTS is only sent on requests
// that arrived over TLS, directly or through a proxy setting
// X-Forwarded-Proto.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		for _, kv := range baseline {
			hdr.Set(kv[0], kv[1])
		}
		if hsts != "" && overTLS(r) {
			hdr.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	if !h.EnableHSTS {
		return ""
	}
	age := h.HSTSMaxAge
	if age <= 0 {
		age = defaultHSTSMaxAge
	}
	v := "max-age=" + strconv.Itoa(age)
	if h.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}

func overTLS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
