package stores

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/geo"
)

// DeliveryPolicy is a store's delivery configuration. Amounts are whole currency units.
type DeliveryPolicy struct {
	MinOrderAmount        int64 `json:"minOrderAmount" koanf:"minOrderAmount"`
	FreeDeliveryThreshold int64 `json:"freeDeliveryThreshold" koanf:"freeDeliveryThreshold"`
	FlatFee               int64 `json:"flatFee" koanf:"flatFee"`
}

// PickupOnly models a store that never delivers: its minimum is unreachable.
func PickupOnly(fee int64) *DeliveryPolicy {
	return &DeliveryPolicy{
		MinOrderAmount:        math.MaxInt64,
		FreeDeliveryThreshold: math.MaxInt64,
		FlatFee:               fee,
	}
}

// Validate rejects negative amounts.
func (p DeliveryPolicy) Validate() error {
	if p.MinOrderAmount < 0 || p.FreeDeliveryThreshold < 0 || p.FlatFee < 0 {
		return fmt.Errorf("delivery policy amounts must not be negative: %w", common.ErrInvalidInput)
	}
	return nil
}

// Store is shared reference data. A nil Policy means no policy is on record.
type Store struct {
	ID       string          `json:"id" koanf:"id"`
	Name     string          `json:"name" koanf:"name"`
	Location geo.Point       `json:"location" koanf:"location"`
	Policy   *DeliveryPolicy `json:"deliveryPolicy,omitempty" koanf:"deliveryPolicy"`
}

// Validate checks id and coordinates; the policy is optional here.
func (s Store) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("store id is empty: %w", common.ErrInvalidInput)
	}
	if err := s.Location.Validate(); err != nil {
		return fmt.Errorf("store %s: %w", s.ID, err)
	}
	if s.Policy != nil {
		if err := s.Policy.Validate(); err != nil {
			return fmt.Errorf("store %s: %w", s.ID, err)
		}
	}
	return nil
}

// StoreCart is the per-store slice of a cart produced by Assign. Never persisted.
type StoreCart struct {
	Store       Store           `json:"store"`
	Items       []cart.LineItem `json:"items"`
	Subtotal    int64           `json:"subtotal"`
	OldSubtotal int64           `json:"oldSubtotal"`
}

// Savings is the item-level sale discount inside this store cart.
func (sc StoreCart) Savings() int64 {
	return sc.OldSubtotal - sc.Subtotal
}

// NewStoreCart builds a store cart and computes its subtotals from items.
// Subtotals that overflow int64 fail with ErrInvalidInput.
func NewStoreCart(store Store, items []cart.LineItem) (StoreCart, error) {
	sc := StoreCart{Store: store}
	for _, it := range items {
		if err := sc.add(it); err != nil {
			return StoreCart{}, fmt.Errorf("store %s: %w", store.ID, err)
		}
	}
	return sc, nil
}

func (sc *StoreCart) add(it cart.LineItem) error {
	sub, err := cart.AddUnits(sc.Subtotal, it.Total())
	if err != nil {
		return err
	}
	old, err := cart.AddUnits(sc.OldSubtotal, it.OldTotal())
	if err != nil {
		return err
	}
	sc.Items = append(sc.Items, it)
	sc.Subtotal, sc.OldSubtotal = sub, old
	return nil
}

// SortedIDs returns the keys of carts in ascending order.
func SortedIDs(carts map[string]*StoreCart) []string {
	ids := make([]string, 0, len(carts))
	for id := range carts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ordered returns carts as a slice in ascending store id order.
func Ordered(carts map[string]*StoreCart) []StoreCart {
	out := make([]StoreCart, 0, len(carts))
	for _, id := range SortedIDs(carts) {
		out = append(out, *carts[id])
	}
	return out
}
