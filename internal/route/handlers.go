package route

import (
	"net/http"

	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/geo"
	"github.com/noah-isme/shopping-optimizer/internal/obs"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

// Handler exposes ComputeRoute over HTTP.
type Handler struct {
	Optimizer Optimizer
	Catalog   *stores.Catalog
}

type routeRequest struct {
	Origin   geo.Point   `json:"origin"`
	Stops    []StopInput `json:"stops" validate:"max=100"`
	StoreIDs []string    `json:"storeIds" validate:"max=100"`
}

// Compute handles POST /api/v1/route. Inline stops are appended after catalog stores.
func (h *Handler) Compute(w http.ResponseWriter, r *http.Request) {
	var payload routeRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	var stops []StopInput
	if len(payload.StoreIDs) > 0 {
		if h.Catalog == nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "store catalog not configured", nil)
			return
		}
		selected, err := h.Catalog.Select(payload.StoreIDs)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		stops = FromStores(selected)
	}
	stops = append(stops, payload.Stops...)
	plan, err := h.Optimizer.Route(payload.Origin, stops)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if obs.RouteStops != nil {
		obs.RouteStops.Observe(float64(len(plan.Stops)))
	}
	common.Data(w, http.StatusOK, plan)
}

// FromStores converts stores into route stops keeping their order.
func FromStores(list []stores.Store) []StopInput {
	out := make([]StopInput, 0, len(list))
	for _, s := range list {
		out = append(out, StopInput{ID: s.ID, Location: s.Location})
	}
	return out
}
