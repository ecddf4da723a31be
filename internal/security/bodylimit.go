// Package security holds request hardening middleware.
package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// BodyLimit caps request payloads at Max bytes. The body is read up front so
// an oversized cart sync is answered with 413 before any handler decodes it.
// Max <= 0 turns the limit off.
type BodyLimit struct {
	Max int64
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	if b.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			payloadTooLarge(w, b.Max)
			return
		}
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, b.Max))
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			payloadTooLarge(w, b.Max)
			return
		case err != nil:
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "request body could not be read", nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(data))
		r.ContentLength = int64(len(data))
		next.ServeHTTP(w, r)
	})
}

func payloadTooLarge(w http.ResponseWriter, limit int64) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large",
		map[string]any{"max_bytes": limit})
}
