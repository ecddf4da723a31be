// Package quantity adjusts cart quantities to realistic pack sizes with an
// external model, degrading to the unchanged cart when the model is unavailable.
package quantity

import (
	"context"
	"math"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
)

// Summary counts how many rows the optimizer touched.
type Summary struct {
	OptimizedCount int `json:"optimizedCount"`
	TotalItems     int `json:"totalItems"`
}

// Result carries the adjusted items. Degraded marks a fallback to the input.
type Result struct {
	Items    []cart.LineItem `json:"items"`
	Summary  Summary         `json:"summary"`
	Degraded bool            `json:"degraded,omitempty"`
}

// Optimizer adjusts quantities and units. It never changes names, prices,
// store pins or source types.
type Optimizer interface {
	Optimize(ctx context.Context, items []cart.LineItem) (Result, error)
}

// Noop returns items unchanged.
type Noop struct{}

// Optimize implements Optimizer.
func (Noop) Optimize(_ context.Context, items []cart.LineItem) (Result, error) {
	return unchanged(items), nil
}

func unchanged(items []cart.LineItem) Result {
	out := make([]cart.LineItem, len(items))
	copy(out, items)
	return Result{Items: out, Summary: Summary{TotalItems: len(items)}}
}

// Suggestion is one model-proposed change keyed by item name.
type Suggestion struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
}

// Apply overlays suggestions onto items. Only quantity and unit change;
// suggestions for unknown names or with an invalid quantity are ignored.
func Apply(items []cart.LineItem, suggestions []Suggestion) Result {
	byKey := make(map[string]Suggestion, len(suggestions))
	for _, s := range suggestions {
		if math.IsNaN(s.Quantity) || math.IsInf(s.Quantity, 0) || s.Quantity <= 0 {
			continue
		}
		byKey[cart.Key(s.Name)] = s
	}
	res := unchanged(items)
	for i, it := range res.Items {
		s, ok := byKey[it.Key()]
		if !ok {
			continue
		}
		changed := false
		if s.Quantity != it.Quantity {
			res.Items[i].Quantity = s.Quantity
			changed = true
		}
		if s.Unit != "" && s.Unit != it.Unit {
			res.Items[i].Unit = s.Unit
			changed = true
		}
		if changed {
			res.Summary.OptimizedCount++
		}
	}
	return res
}
