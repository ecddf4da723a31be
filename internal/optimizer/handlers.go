package optimizer

import (
	"net/http"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// Handler exposes Optimize over HTTP.
type Handler struct {
	Svc *Service
}

// Optimize handles POST /me/cart/optimize and POST /optimize. The session user,
// when present, selects the persisted cart.
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "optimizer not configured", nil)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.WriteError(w, err)
		return
	}
	req.UserID, _ = common.UserID(r.Context())
	res, err := h.Svc.Optimize(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}
