package stores

import (
	"fmt"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// Assigner partitions optimizable items across candidate stores.
type Assigner struct {
	Policy Policy
}

// NewAssigner returns an Assigner using p, or RoundRobin when p is nil.
func NewAssigner(p Policy) *Assigner {
	if p == nil {
		p = RoundRobin{}
	}
	return &Assigner{Policy: p}
}

// Partition splits items into store-optimizable and other items, keeping order.
func Partition(items []cart.LineItem) (optimizable, other []cart.LineItem) {
	for _, it := range items {
		if it.SourceType.Optimizable() {
			optimizable = append(optimizable, it)
		} else {
			other = append(other, it)
		}
	}
	return optimizable, other
}

// Assign places every optimizable item in exactly one store cart, keyed by
// store id. Items pinned to a known store skip the policy. Non-optimizable
// items are ignored.
func (a *Assigner) Assign(items []cart.LineItem, candidates []Store) (map[string]*StoreCart, error) {
	optimizable, _ := Partition(items)
	out := make(map[string]*StoreCart)
	if len(optimizable) == 0 {
		return out, nil
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidate stores for %d items: %w", len(optimizable), common.ErrInvalidInput)
	}
	byID := make(map[string]int, len(candidates))
	for i, s := range candidates {
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate candidate store %q: %w", s.ID, common.ErrInvalidInput)
		}
		byID[s.ID] = i
	}
	policy := a.policy()

	for i, it := range optimizable {
		if err := it.Validate(); err != nil {
			return nil, err
		}
		var idx int
		if it.StoreID != "" {
			pinned, ok := byID[it.StoreID]
			if !ok {
				return nil, fmt.Errorf("item %q references unknown store %q: %w", it.Name, it.StoreID, common.ErrInvalidInput)
			}
			idx = pinned
		} else {
			idx = policy.Pick(i, it, candidates)
			if idx < 0 || idx >= len(candidates) {
				return nil, fmt.Errorf("assignment policy returned index %d for %d stores", idx, len(candidates))
			}
		}
		store := candidates[idx]
		if q, ok := policy.(Quoter); ok && it.StoreID == "" {
			if price, ok := q.Quote(store.ID, it); ok {
				it = withUnitPrice(it, price)
				if err := it.Validate(); err != nil {
					return nil, err
				}
			}
		}
		sc, ok := out[store.ID]
		if !ok {
			sc = &StoreCart{Store: store}
			out[store.ID] = sc
		}
		it.StoreID = store.ID
		if err := sc.add(it); err != nil {
			return nil, fmt.Errorf("store %s: %w", store.ID, err)
		}
	}
	return out, nil
}

// withUnitPrice re-prices it. A pre-sale price below the new price no longer
// describes a discount and is dropped.
func withUnitPrice(it cart.LineItem, price int64) cart.LineItem {
	if it.OldUnitPrice != nil && *it.OldUnitPrice < price {
		it.OldUnitPrice = nil
	}
	it.UnitPrice = price
	return it
}

func (a *Assigner) policy() Policy {
	if a == nil || a.Policy == nil {
		return RoundRobin{}
	}
	return a.Policy
}
