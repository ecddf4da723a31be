package delivery_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/delivery"
	"github.com/noah-isme/shopping-optimizer/internal/geo"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

func TestEvaluateBelowMinimum(t *testing.T) {
	res := delivery.Evaluate(300, stores.DeliveryPolicy{MinOrderAmount: 500, FreeDeliveryThreshold: 1000, FlatFee: 40})
	assert.False(t, res.CanDeliver)
	assert.Equal(t, int64(200), res.AmountToMinimum)
	assert.Equal(t, int64(40), res.Fee)
}

func TestEvaluateFreeDeliveryAndZeroMinimum(t *testing.T) {
	res := delivery.Evaluate(1000, stores.DeliveryPolicy{MinOrderAmount: 500, FreeDeliveryThreshold: 1000, FlatFee: 40})
	assert.Equal(t, delivery.Result{CanDeliver: true}, res)

	res = delivery.Evaluate(0, stores.DeliveryPolicy{FlatFee: 15, FreeDeliveryThreshold: 100})
	assert.True(t, res.CanDeliver)
	assert.Equal(t, int64(15), res.Fee)
	assert.Zero(t, res.AmountToMinimum)
}

func TestEvaluatePickupOnlyNeverDelivers(t *testing.T) {
	res := delivery.Evaluate(1<<40, *stores.PickupOnly(0))
	assert.False(t, res.CanDeliver)
	assert.Positive(t, res.AmountToMinimum)
}

func TestEvaluateMonotonicInSubtotal(t *testing.T) {
	policies := []stores.DeliveryPolicy{
		{MinOrderAmount: 500, FreeDeliveryThreshold: 1000, FlatFee: 40},
		{MinOrderAmount: 0, FreeDeliveryThreshold: 0, FlatFee: 0},
		{MinOrderAmount: 250, FreeDeliveryThreshold: 100, FlatFee: 5},
	}
	for _, p := range policies {
		prev := delivery.Evaluate(0, p)
		for sub := int64(1); sub <= 1500; sub += 7 {
			cur := delivery.Evaluate(sub, p)
			if prev.CanDeliver {
				require.True(t, cur.CanDeliver, "subtotal %d", sub)
			}
			require.LessOrEqual(t, cur.AmountToMinimum, prev.AmountToMinimum, "subtotal %d", sub)
			prev = cur
		}
	}
}

func TestEvaluateCartWithoutPolicy(t *testing.T) {
	_, err := delivery.EvaluateCart(stores.StoreCart{Store: stores.Store{ID: "x"}, Subtotal: 10})
	require.ErrorIs(t, err, common.ErrPolicyInconsistency)
}

func TestEvaluateAll(t *testing.T) {
	carts := map[string]*stores.StoreCart{
		"b": {Store: stores.Store{ID: "b", Policy: &stores.DeliveryPolicy{MinOrderAmount: 100, FreeDeliveryThreshold: 1000, FlatFee: 30}}, Subtotal: 150},
		"a": {Store: stores.Store{ID: "a", Policy: &stores.DeliveryPolicy{MinOrderAmount: 500, FreeDeliveryThreshold: 1000, FlatFee: 30}}, Subtotal: 150},
		"c": {Store: stores.Store{ID: "c", Policy: &stores.DeliveryPolicy{MinOrderAmount: 0, FreeDeliveryThreshold: 100, FlatFee: 30}}, Subtotal: 150},
	}
	d, err := delivery.EvaluateAll(carts)
	require.NoError(t, err)

	require.Len(t, d.PerStore, 3)
	assert.Equal(t, "a", d.PerStore[0].StoreID)
	assert.Equal(t, int64(350), d.PerStore[0].AmountToMinimum)
	assert.Equal(t, []string{"b", "c"}, d.DeliverableIDs())
	assert.Equal(t, int64(30), d.TotalFees)

	carts["d"] = &stores.StoreCart{Store: stores.Store{ID: "d"}}
	_, err = delivery.EvaluateAll(carts)
	require.ErrorIs(t, err, common.ErrPolicyInconsistency)
}

func TestEvaluateHandler(t *testing.T) {
	catalog, err := stores.NewCatalog([]stores.Store{
		{ID: "s1", Location: geo.Point{}, Policy: &stores.DeliveryPolicy{MinOrderAmount: 500, FreeDeliveryThreshold: 800, FlatFee: 25}},
		{ID: "bare", Location: geo.Point{}},
	}, nil)
	require.NoError(t, err)
	h := &delivery.Handler{Catalog: catalog}

	call := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.Evaluate(rr, httptest.NewRequest(http.MethodPost, "/api/v1/delivery/evaluate", bytes.NewBufferString(body)))
		return rr
	}

	rr := call(`{"subtotal":300,"storeId":"s1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data delivery.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, delivery.Result{CanDeliver: false, Fee: 25, AmountToMinimum: 200}, resp.Data)

	rr = call(`{"subtotal":10,"policy":{"minOrderAmount":0,"freeDeliveryThreshold":5,"flatFee":9}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, http.StatusUnprocessableEntity, call(`{"subtotal":10,"storeId":"bare"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(`{"subtotal":10,"storeId":"ghost"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(`{"subtotal":10}`).Code)
}
