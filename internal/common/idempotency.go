package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	idemHeader     = "Idempotency-Key"
	idemPending    = "pending"
	idemMaxReplay  = 64 << 10
	idemDefaultTTL = 24 * time.Hour
)

// Idem makes write endpoints safe to retry. The first request carrying an
// Idempotency-Key claims it; once it completes, later requests with the same
// key from the same user on the same path get the stored response back
// instead of running the handler again. 5xx answers release the key.
type Idem struct {
	R   redis.UniversalClient
	TTL time.Duration
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	// Truncated marks a completed request whose body was too large to keep.
	Truncated bool `json:"truncated,omitempty"`
}

func (i Idem) Middleware(next http.Handler) http.Handler {
	if i.R == nil {
		return next
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = idemDefaultTTL
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(idemHeader)
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		user, _ := UserID(ctx)
		key := idemKey(user, r.URL.Path, header)

		claimed, err := i.R.SetNX(ctx, key, idemPending, ttl).Result()
		if err != nil {
			JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "idempotency store error", nil)
			return
		}
		if !claimed {
			i.replay(ctx, w, key)
			return
		}

		rec := &capture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		store := context.WithoutCancel(ctx)
		if rec.status >= http.StatusInternalServerError {
			_ = i.R.Del(store, key).Err()
			return
		}
		saved := storedResponse{Status: rec.status, ContentType: rec.Header().Get("Content-Type")}
		if rec.overflow {
			saved.Truncated = true
		} else {
			saved.Body = rec.body.Bytes()
		}
		payload, err := json.Marshal(saved)
		if err == nil {
			_ = i.R.Set(store, key, payload, redis.KeepTTL).Err()
		}
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key string) {
	raw, err := i.R.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "request key expired during replay, retry", nil)
		return
	case err != nil:
		JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "idempotency store error", nil)
		return
	}
	var saved storedResponse
	if string(raw) == idemPending || json.Unmarshal(raw, &saved) != nil {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "a request with this key is still in progress", nil)
		return
	}
	if saved.Truncated {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY",
			"a request with this key already completed; its response is too large to replay",
			map[string]int{"status": saved.Status})
		return
	}
	if saved.ContentType != "" {
		w.Header().Set("Content-Type", saved.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(saved.Status)
	_, _ = w.Write(saved.Body)
}

func idemKey(user, path, header string) string {
	sum := sha256.Sum256([]byte(user + "|" + path + "|" + header))
	return "idem:" + hex.EncodeToString(sum[:])
}

// capture tees the response so it can be stored for replay. Bodies beyond
// idemMaxReplay are passed through but only their status is kept.
type capture struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	overflow bool
}

func (c *capture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *capture) Write(p []byte) (int, error) {
	if !c.overflow {
		if c.body.Len()+len(p) > idemMaxReplay {
			c.overflow = true
			c.body.Reset()
		} else {
			c.body.Write(p)
		}
	}
	return c.ResponseWriter.Write(p)
}
