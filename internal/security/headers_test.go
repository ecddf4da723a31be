package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func serve(h http.Handler, req *http.Request) http.Header {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Header()
}

func TestHeadersOnTLSRequest(t *testing.T) {
	h := Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600, HSTSIncludeSubdomains: true}.Middleware(okHandler)
	req := httptest.NewRequest(http.MethodGet, "https://shop.local/api/v1/stores", nil)
	req.TLS = &tls.ConnectionState{}

	hdr := serve(h, req)
	assert.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", hdr.Get("Cache-Control"))
	assert.Equal(t, "max-age=600; includeSubDomains", hdr.Get("Strict-Transport-Security"))
	assert.Contains(t, hdr.Get("Permissions-Policy"), "geolocation=(self)")
}

func TestHeadersHSTSBehindProxy(t *testing.T) {
	h := Headers{Enable: true, EnableHSTS: true}.Middleware(okHandler)
	req := httptest.NewRequest(http.MethodGet, "http://shop.local/api/v1/stores", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")

	assert.Equal(t, "max-age=31536000", serve(h, req).Get("Strict-Transport-Security"))
}

func TestHeadersPlainHTTPSkipsHSTS(t *testing.T) {
	h := Headers{Enable: true, EnableHSTS: true}.Middleware(okHandler)
	hdr := serve(h, httptest.NewRequest(http.MethodGet, "http://shop.local/", nil))
	assert.Empty(t, hdr.Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", hdr.Get("X-Frame-Options"))
}

func TestHeadersDisabled(t *testing.T) {
	h := Headers{EnableHSTS: true}.Middleware(okHandler)
	assert.Empty(t, serve(h, httptest.NewRequest(http.MethodGet, "http://shop.local/", nil)).Get("X-Content-Type-Options"))
}
