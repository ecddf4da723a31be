package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// ErrUpstreamStatus marks a retryable HTTP status (5xx or 429) from the remote side.
var ErrUpstreamStatus = errors.New("resilience: upstream status")

// HTTPClient calls one remote collaborator with a per-attempt timeout,
// exponential backoff between attempts and an optional circuit breaker.
type HTTPClient struct {
	Client *http.Client
	// Breaker, when nil, disables short-circuiting.
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	// Fallback receives the last error once attempts are exhausted or the
	// breaker refuses the call.
	Fallback func(context.Context, *http.Request, error) (*http.Response, error)
}

// Do sends req, retrying network errors and retryable statuses. Request
// bodies are buffered so every attempt sends the same payload.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}
	attempts := max(cl.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, Backoff(cl.BaseBackoff, attempt-1, cl.Jitter)); err != nil {
				return nil, err
			}
		}
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := cl.attempt(ctx, req, body)
		ok := err == nil
		if cl.Breaker != nil {
			cl.Breaker.Report(ctx, ok)
		}
		if ok {
			return resp, nil
		}
		lastErr = err
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

// attempt sends one copy of req. A retryable status is turned into an error
// and its body drained. The per-attempt timeout stays armed until the caller
// closes the returned body.
func (cl HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if cl.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, cl.Timeout)
	}
	out := req.Clone(callCtx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
	}
	resp, err := cl.Client.Do(out)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrUpstreamStatus, resp.Status)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil }
	return data, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff doubles base for every attempt after the first. jitterPct spreads
// the result by ± that fraction (0.2 means 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << uint(max(attempt, 1)-1)
	if jitterPct <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * jitterPct * float64(d)
	return d + time.Duration(spread)
}
