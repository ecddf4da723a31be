package cart

import (
	"net/http"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// Handler wires cart operations to HTTP.
type Handler struct {
	Svc *Service
}

type mergeRequest struct {
	Local  []LineItem `json:"local" validate:"max=500"`
	Remote []LineItem `json:"remote" validate:"max=500"`
}

type syncRequest struct {
	Items []LineItem `json:"items" validate:"max=500"`
}

type quantityRequest struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Quantity float64 `json:"quantity"`
}

// Merge reconciles two item lists without touching persisted state.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	var payload mergeRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"items": Merge(payload.Local, payload.Remote)})
}

// Get returns the session user's persisted cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	snap, items, err := h.Svc.Items(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"cartId": snap.ID, "items": items})
}

// Sync merges the client's local cart into the persisted one.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload syncRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	userID, _ := common.UserID(r.Context())
	result, err := h.Svc.Sync(r.Context(), userID, payload.Items)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, result)
}

// SetQuantity changes one item's quantity; zero removes it.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload quantityRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	userID, _ := common.UserID(r.Context())
	items, err := h.Svc.SetQuantity(r.Context(), userID, payload.Name, payload.Quantity)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"items": items})
}

// Clear empties the session user's cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	if err := h.Svc.Clear(r.Context(), userID); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
