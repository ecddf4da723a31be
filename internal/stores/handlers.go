package stores

import (
	"net/http"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// Handler exposes the store catalog.
type Handler struct {
	Catalog *Catalog
}

// List handles GET /api/v1/stores.
func (h *Handler) List(w http.ResponseWriter, _ *http.Request) {
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "store catalog not configured", nil)
		return
	}
	common.Data(w, http.StatusOK, h.Catalog.All())
}
