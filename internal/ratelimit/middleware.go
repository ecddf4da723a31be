package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// Config picks the bucket key and the budget per window.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler applies a sliding-window Limiter per request. When the limiter
// store fails the request goes through and OnError hears about it.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Config.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		writeDecision(w.Header(), d)
		if !d.Allowed {
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeDecision(hdr http.Header, d Decision) {
	hdr.Set("X-RateLimit-Limit", strconv.Itoa(max(d.Limit, 0)))
	hdr.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	hdr.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		wait := math.Ceil(time.Until(d.ResetAt).Seconds())
		hdr.Set("Retry-After", strconv.Itoa(max(int(wait), 1)))
	}
}

// ClientIP keys requests by remote address, which chi's RealIP middleware
// has already rewritten from forwarding headers.
func ClientIP(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		return prefix + addr
	}
}

// UserOrIP keys by session user, or by client address for anonymous callers.
func UserOrIP(prefix string) func(*http.Request) string {
	anonymous := ClientIP(prefix + "ip:")
	return func(r *http.Request) string {
		if user, ok := common.UserID(r.Context()); ok {
			return prefix + "user:" + user
		}
		return anonymous(r)
	}
}
