package pricing

import (
	"net/http"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

// PromoResolver turns a promo code into a discount for a combined subtotal.
type PromoResolver interface {
	Resolve(code string, subtotal Money) (*Promo, error)
}

// PriceWithCode prices in after resolving code against the combined
// pre-strategy subtotal. An empty code prices without a promo.
func PriceWithCode(in Input, code string, promos PromoResolver) (Totals, error) {
	in.Promo = nil
	base, err := Price(in)
	if err != nil || code == "" || promos == nil {
		return base, err
	}
	p, err := promos.Resolve(code, base.StoreSubtotal+base.OtherSubtotal)
	if err != nil {
		return Totals{}, err
	}
	in.Promo = p
	return Price(in)
}

// Handler exposes PriceCart over HTTP.
type Handler struct {
	Promos          PromoResolver
	DefaultStrategy Strategy
}

type storeCartPayload struct {
	StoreID string          `json:"storeId" validate:"required"`
	Items   []cart.LineItem `json:"items" validate:"max=500"`
}

type priceRequest struct {
	StoreCarts   []storeCartPayload `json:"storeCarts" validate:"max=50,dive"`
	OtherItems   []cart.LineItem    `json:"otherItems" validate:"max=500"`
	Strategy     string             `json:"strategy"`
	PromoCode    string             `json:"promoCode" validate:"max=64"`
	DeliveryFees int64              `json:"deliveryFees" validate:"gte=0"`
}

type priceResponse struct {
	Totals
	Warnings []string `json:"warnings,omitempty"`
}

// Price handles POST /api/v1/pricing. Subtotals are recomputed from the items.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	var payload priceRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	strategy := h.DefaultStrategy
	if strategy == "" {
		strategy = StrategyBalanced
	}
	if payload.Strategy != "" {
		parsed, err := ParseStrategy(payload.Strategy)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		strategy = parsed
	}
	in := Input{Strategy: strategy, OtherItems: payload.OtherItems, DeliveryFees: payload.DeliveryFees}
	for _, sc := range payload.StoreCarts {
		for _, it := range sc.Items {
			if err := it.Validate(); err != nil {
				common.WriteError(w, err)
				return
			}
		}
		built, err := stores.NewStoreCart(stores.Store{ID: sc.StoreID}, sc.Items)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		in.StoreCarts = append(in.StoreCarts, built)
	}
	totals, err := PriceWithCode(in, payload.PromoCode, h.Promos)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, priceResponse{Totals: totals, Warnings: totals.Warnings()})
}
