package quantity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/obs"
	"github.com/noah-isme/shopping-optimizer/internal/resilience"
)

const fallbackTarget = "ai_quantity"

// Guarded bounds an Optimizer with a timeout and a circuit breaker. On any
// failure it returns the input unchanged with Degraded set.
type Guarded struct {
	Next    Optimizer
	Timeout time.Duration
	Breaker *resilience.Breaker
	Logger  zerolog.Logger
}

// Optimize implements Optimizer. It never returns an error.
func (g Guarded) Optimize(ctx context.Context, items []cart.LineItem) (Result, error) {
	if g.Next == nil || len(items) == 0 {
		return unchanged(items), nil
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res Result
	call := func(ctx context.Context) error {
		var err error
		res, err = g.Next.Optimize(ctx, items)
		if err == nil && len(res.Items) != len(items) {
			err = fmt.Errorf("quantity: optimizer returned %d items for %d", len(res.Items), len(items))
		}
		return err
	}
	var err error
	if g.Breaker != nil {
		err = g.Breaker.Execute(callCtx, call)
	} else {
		err = call(callCtx)
	}
	if err == nil {
		res.Summary.TotalItems = len(items)
		return res, nil
	}

	obs.RecordFallback(fallbackTarget)
	logger := obs.LoggerFrom(ctx, g.Logger)
	logger.Warn().Err(errors.Join(common.ErrUpstreamUnavailable, err)).Int("items", len(items)).Msg("ai_optimize_fallback")
	fallback := unchanged(items)
	fallback.Degraded = true
	return fallback, nil
}
