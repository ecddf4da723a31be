package quantity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/quantity"
	"github.com/noah-isme/shopping-optimizer/internal/resilience"
)

type genFunc func(ctx context.Context, prompt string) (string, error)

func (f genFunc) Generate(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

func items() []cart.LineItem {
	return []cart.LineItem{
		{ID: "1", Name: "Flour", Quantity: 0.3, Unit: "kg", UnitPrice: 12000, SourceType: cart.SourceRecipeIngredients, StoreID: "fresh-market"},
		{ID: "2", Name: "Eggs", Quantity: 3, UnitPrice: 2000, SourceType: cart.SourceProduct},
	}
}

func TestModelAppliesOnlyQuantityAndUnit(t *testing.T) {
	var prompt string
	m := quantity.Model{Gen: genFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n" + `{"items":[{"name":"flour","quantity":1,"unit":"pack"},{"name":"Milk","quantity":9}]}` + "\n```", nil
	})}

	res, err := m.Optimize(context.Background(), items())
	require.NoError(t, err)
	require.Contains(t, prompt, `"name":"Flour"`)
	require.Equal(t, 1, res.Summary.OptimizedCount)
	require.Equal(t, 2, res.Summary.TotalItems)
	require.False(t, res.Degraded)

	flour := res.Items[0]
	require.Equal(t, "Flour", flour.Name)
	require.Equal(t, 1.0, flour.Quantity)
	require.Equal(t, "pack", flour.Unit)
	require.Equal(t, int64(12000), flour.UnitPrice)
	require.Equal(t, "fresh-market", flour.StoreID)
	require.Equal(t, cart.SourceRecipeIngredients, flour.SourceType)
	require.Equal(t, items()[1], res.Items[1])
}

func TestApplyIgnoresInvalidQuantities(t *testing.T) {
	res := quantity.Apply(items(), []quantity.Suggestion{{Name: "Eggs", Quantity: 0}, {Name: "Flour", Quantity: -2}})
	require.Equal(t, 0, res.Summary.OptimizedCount)
	require.Equal(t, items(), res.Items)
}

func TestParseReplyShapes(t *testing.T) {
	list, err := quantity.ParseReply(`[{"name":"a","quantity":2}]`)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = quantity.ParseReply("  ")
	require.ErrorIs(t, err, quantity.ErrEmptyReply)

	_, err = quantity.ParseReply("not json")
	require.Error(t, err)
}

func TestGuardedFallsBackOnError(t *testing.T) {
	g := quantity.Guarded{
		Next: quantity.Model{Gen: genFunc(func(context.Context, string) (string, error) {
			return "", errors.New("quota exceeded")
		})},
		Logger: zerolog.Nop(),
	}
	res, err := g.Optimize(context.Background(), items())
	require.NoError(t, err)
	require.True(t, res.Degraded)
	require.Equal(t, items(), res.Items)
	require.Equal(t, 2, res.Summary.TotalItems)
}

func TestGuardedTimesOut(t *testing.T) {
	g := quantity.Guarded{
		Next: quantity.Model{Gen: genFunc(func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})},
		Timeout: 20 * time.Millisecond,
		Logger:  zerolog.Nop(),
	}
	start := time.Now()
	res, err := g.Optimize(context.Background(), items())
	require.NoError(t, err)
	require.True(t, res.Degraded)
	require.Less(t, time.Since(start), time.Second)
}

func TestGuardedOpensBreaker(t *testing.T) {
	calls := 0
	g := quantity.Guarded{
		Next: quantity.Model{Gen: genFunc(func(context.Context, string) (string, error) {
			calls++
			return "", errors.New("boom")
		})},
		Breaker: resilience.NewBreaker(2, 0.5, time.Minute),
		Logger:  zerolog.Nop(),
	}
	for i := 0; i < 4; i++ {
		res, err := g.Optimize(context.Background(), items())
		require.NoError(t, err)
		require.True(t, res.Degraded)
	}
	require.Equal(t, 2, calls)
}

func TestGuardedRejectsShrunkResult(t *testing.T) {
	g := quantity.Guarded{Next: shrink{}, Logger: zerolog.Nop()}
	res, err := g.Optimize(context.Background(), items())
	require.NoError(t, err)
	require.True(t, res.Degraded)
	require.Len(t, res.Items, 2)
}

type shrink struct{}

func (shrink) Optimize(_ context.Context, in []cart.LineItem) (quantity.Result, error) {
	return quantity.Result{Items: in[:1]}, nil
}

func TestNoop(t *testing.T) {
	res, err := quantity.Noop{}.Optimize(context.Background(), items())
	require.NoError(t, err)
	require.Equal(t, items(), res.Items)
}
