package stores

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// Policy chooses a store for one optimizable item. index is the item's position
// among optimizable items; the returned value indexes into candidates, which is
// never empty.
type Policy interface {
	Pick(index int, item cart.LineItem, candidates []Store) int
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(index int, item cart.LineItem, candidates []Store) int

// Pick calls f.
func (f PolicyFunc) Pick(index int, item cart.LineItem, candidates []Store) int {
	return f(index, item, candidates)
}

// RoundRobin spreads items over candidates in order.
type RoundRobin struct{}

// Pick implements Policy.
func (RoundRobin) Pick(index int, _ cart.LineItem, candidates []Store) int {
	return index % len(candidates)
}

// StableHash keeps an item in the same store across passes for a fixed candidate list.
type StableHash struct{}

// Pick implements Policy.
func (StableHash) Pick(_ int, item cart.LineItem, candidates []Store) int {
	return int(xxhash.Sum64String(item.Key()) % uint64(len(candidates)))
}

// PriceBook returns a store's unit price for an item key.
type PriceBook interface {
	UnitPrice(storeID, itemKey string) (int64, bool)
}

// PriceTable is an in-memory PriceBook keyed by store id then item key.
type PriceTable map[string]map[string]int64

// UnitPrice implements PriceBook.
func (t PriceTable) UnitPrice(storeID, itemKey string) (int64, bool) {
	row, ok := t[storeID]
	if !ok {
		return 0, false
	}
	p, ok := row[itemKey]
	return p, ok
}

// Quoter is implemented by policies that know per-store prices. Assign prices
// an item it placed at the quote of the chosen store.
type Quoter interface {
	Quote(storeID string, item cart.LineItem) (int64, bool)
}

// Cheapest picks the store quoting the lowest unit price. Unknown prices fall
// back to the item's own price; ties go to the earliest candidate. The chosen
// store's quote becomes the item's unit price.
type Cheapest struct {
	Book PriceBook
}

// Quote implements Quoter.
func (c Cheapest) Quote(storeID string, item cart.LineItem) (int64, bool) {
	if c.Book == nil {
		return 0, false
	}
	p, ok := c.Book.UnitPrice(storeID, item.Key())
	return p, ok && p >= 0
}

// Pick implements Policy.
func (c Cheapest) Pick(_ int, item cart.LineItem, candidates []Store) int {
	best := 0
	bestPrice := int64(-1)
	for i, s := range candidates {
		price := item.UnitPrice
		if c.Book != nil {
			if p, ok := c.Book.UnitPrice(s.ID, item.Key()); ok {
				price = p
			}
		}
		if bestPrice < 0 || price < bestPrice {
			best, bestPrice = i, price
		}
	}
	return best
}

// Random picks uniformly. Rand must not be shared across goroutines.
type Random struct {
	Rand *rand.Rand
}

// Pick implements Policy.
func (r Random) Pick(_ int, _ cart.LineItem, candidates []Store) int {
	return r.Rand.Intn(len(candidates))
}

// ParsePolicy resolves a configured policy name.
func ParsePolicy(name string, book PriceBook) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "round_robin", "roundrobin":
		return RoundRobin{}, nil
	case "stable_hash", "hash":
		return StableHash{}, nil
	case "cheapest":
		return Cheapest{Book: book}, nil
	default:
		return nil, fmt.Errorf("unknown assignment policy %q: %w", name, common.ErrInvalidInput)
	}
}
