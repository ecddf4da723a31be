package geocode

import (
	"net/http"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// Handler exposes the geocoder over HTTP.
type Handler struct {
	Client Client
}

// Search handles GET /geocode?q=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "geocoder not configured", nil)
		return
	}
	q := r.URL.Query().Get("q")
	if len(q) > 300 {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "query too long", nil)
		return
	}
	places, err := h.Client.Search(r.Context(), q)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"places": places})
}
