package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag; the API clears it while draining on shutdown.
func SetReady(v bool) { ready.Store(v) }

// Dependency checks one backing service. A nil Check marks it as not in use.
type Dependency struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Deps []Dependency
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency checks.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	ok := ready.Load()
	if !ok {
		status["server"] = "draining"
	}
	for _, p := range h.Deps {
		if p.Check == nil {
			status[p.Name] = "disabled"
			continue
		}
		if err := run(r.Context(), p); err != nil {
			status[p.Name] = err.Error()
			ok = false
			continue
		}
		status[p.Name] = "ok"
	}
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func run(ctx context.Context, p Dependency) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}
