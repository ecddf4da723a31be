// Package delivery decides whether a store cart qualifies for delivery and what it costs.
package delivery

import (
	"fmt"

	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

// Result is the eligibility outcome for one store cart.
type Result struct {
	CanDeliver      bool  `json:"canDeliver"`
	Fee             int64 `json:"fee"`
	AmountToMinimum int64 `json:"amountToMinimum"`
}

// Evaluate applies a delivery policy to a subtotal. It has no error path.
func Evaluate(subtotal int64, p stores.DeliveryPolicy) Result {
	res := Result{CanDeliver: subtotal >= p.MinOrderAmount}
	if subtotal < p.FreeDeliveryThreshold {
		res.Fee = p.FlatFee
	}
	if gap := p.MinOrderAmount - subtotal; gap > 0 {
		res.AmountToMinimum = gap
	}
	return res
}

// EvaluateCart evaluates sc against its store's policy. A store without a
// policy on record is a hard error; no default is assumed.
func EvaluateCart(sc stores.StoreCart) (Result, error) {
	if sc.Store.Policy == nil {
		return Result{}, fmt.Errorf("store %q has no delivery policy: %w", sc.Store.ID, common.ErrPolicyInconsistency)
	}
	return Evaluate(sc.Subtotal, *sc.Store.Policy), nil
}

// StoreDecision pairs a store cart with its eligibility.
type StoreDecision struct {
	StoreID string `json:"storeId"`
	Result
}

// Decisions summarises eligibility across all store carts.
type Decisions struct {
	PerStore    []StoreDecision    `json:"perStore"`
	Deliverable []stores.StoreCart `json:"-"`
	TotalFees   int64              `json:"totalFees"`
}

// DeliverableIDs lists the ids of the deliverable stores in store id order.
func (d Decisions) DeliverableIDs() []string {
	ids := make([]string, 0, len(d.Deliverable))
	for _, sc := range d.Deliverable {
		ids = append(ids, sc.Store.ID)
	}
	return ids
}

// EvaluateAll evaluates every cart in ascending store id order. Fees are summed
// over deliverable stores only.
func EvaluateAll(carts map[string]*stores.StoreCart) (Decisions, error) {
	out := Decisions{PerStore: make([]StoreDecision, 0, len(carts))}
	for _, sc := range stores.Ordered(carts) {
		res, err := EvaluateCart(sc)
		if err != nil {
			return Decisions{}, err
		}
		out.PerStore = append(out.PerStore, StoreDecision{StoreID: sc.Store.ID, Result: res})
		if res.CanDeliver {
			out.Deliverable = append(out.Deliverable, sc)
			out.TotalFees += res.Fee
		}
	}
	return out, nil
}
