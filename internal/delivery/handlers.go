package delivery

import (
	"net/http"

	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

// Handler exposes EvaluateDelivery over HTTP.
type Handler struct {
	Catalog *stores.Catalog
}

type evaluateRequest struct {
	Subtotal int64                  `json:"subtotal" validate:"gte=0"`
	StoreID  string                 `json:"storeId" validate:"required_without=Policy"`
	Policy   *stores.DeliveryPolicy `json:"policy"`
}

// Evaluate handles POST /api/v1/delivery/evaluate. An inline policy wins over
// the catalog entry for storeId.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var payload evaluateRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	sc := stores.StoreCart{Subtotal: payload.Subtotal}
	switch {
	case payload.Policy != nil:
		if err := payload.Policy.Validate(); err != nil {
			common.WriteError(w, err)
			return
		}
		sc.Store = stores.Store{ID: payload.StoreID, Policy: payload.Policy}
	case h.Catalog != nil:
		store, ok := h.Catalog.Get(payload.StoreID)
		if !ok {
			common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "unknown store", map[string]string{"storeId": payload.StoreID})
			return
		}
		sc.Store = store
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "store catalog not configured", nil)
		return
	}
	res, err := EvaluateCart(sc)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}
