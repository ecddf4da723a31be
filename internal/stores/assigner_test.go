package stores_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/geo"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

func ptr(v int64) *int64 { return &v }

func candidates() []stores.Store {
	policy := &stores.DeliveryPolicy{MinOrderAmount: 100, FreeDeliveryThreshold: 500, FlatFee: 20}
	return []stores.Store{
		{ID: "a", Name: "A", Location: geo.Point{Lat: 0, Lng: 1}, Policy: policy},
		{ID: "b", Name: "B", Location: geo.Point{Lat: 0, Lng: 2}, Policy: policy},
		{ID: "c", Name: "C", Location: geo.Point{Lat: 0, Lng: 3}, Policy: policy},
	}
}

func sampleItems() []cart.LineItem {
	return []cart.LineItem{
		{Name: "Milk", UnitPrice: 100, OldUnitPrice: ptr(120), Quantity: 2, SourceType: cart.SourceProduct},
		{Name: "Eggs", UnitPrice: 30, Quantity: 12, SourceType: cart.SourceRecipeIngredients},
		{Name: "Party tray", UnitPrice: 1000, Quantity: 1, SourceType: cart.SourceCatering},
		{Name: "Rice", UnitPrice: 50, Quantity: 1.5, SourceType: cart.SourceMealPlanDIY},
		{Name: "Kale", UnitPrice: 10, Quantity: 3, SourceType: cart.SourceProduct},
	}
}

func TestAssignEachOptimizableItemExactlyOnce(t *testing.T) {
	policies := map[string]stores.Policy{
		"round_robin": stores.RoundRobin{},
		"stable_hash": stores.StableHash{},
		"cheapest":    stores.Cheapest{},
		"random":      stores.Random{Rand: rand.New(rand.NewSource(7))},
	}
	for name, p := range policies {
		t.Run(name, func(t *testing.T) {
			carts, err := stores.NewAssigner(p).Assign(sampleItems(), candidates())
			require.NoError(t, err)

			seen := map[string]int{}
			for id, sc := range carts {
				require.Equal(t, id, sc.Store.ID)
				var sub, old int64
				for _, it := range sc.Items {
					seen[it.Key()]++
					assert.Equal(t, id, it.StoreID)
					sub += it.Total()
					old += it.OldTotal()
				}
				assert.Equal(t, sub, sc.Subtotal)
				assert.Equal(t, old, sc.OldSubtotal)
			}
			assert.Equal(t, map[string]int{"milk": 1, "eggs": 1, "rice": 1, "kale": 1}, seen)
		})
	}
}

func TestRoundRobinIsDeterministic(t *testing.T) {
	carts, err := stores.NewAssigner(nil).Assign(sampleItems(), candidates())
	require.NoError(t, err)

	require.Len(t, carts, 3)
	assert.Equal(t, []string{"Milk", "Kale"}, names(carts["a"].Items))
	assert.Equal(t, []string{"Eggs"}, names(carts["b"].Items))
	assert.Equal(t, []string{"Rice"}, names(carts["c"].Items))

	assert.Equal(t, int64(230), carts["a"].Subtotal)
	assert.Equal(t, int64(270), carts["a"].OldSubtotal)
	assert.Equal(t, int64(40), carts["a"].Savings())
	assert.Equal(t, int64(75), carts["c"].Subtotal)
}

func TestStableHashKeepsItemInSameStore(t *testing.T) {
	item := cart.LineItem{Name: "Milk", UnitPrice: 1, Quantity: 1, SourceType: cart.SourceProduct}
	p := stores.StableHash{}
	first := p.Pick(0, item, candidates())
	item.Name = "  MILK "
	assert.Equal(t, first, p.Pick(9, item, candidates()))
}

func TestCheapestUsesPriceBook(t *testing.T) {
	book := stores.PriceTable{
		"a": {"milk": 120},
		"b": {"milk": 90},
		"c": {"milk": 90},
	}
	items := []cart.LineItem{{Name: "Milk", UnitPrice: 100, Quantity: 1, SourceType: cart.SourceProduct}}
	carts, err := stores.NewAssigner(stores.Cheapest{Book: book}).Assign(items, candidates())
	require.NoError(t, err)
	require.Contains(t, carts, "b")
	assert.Len(t, carts, 1)
	assert.Equal(t, int64(90), carts["b"].Items[0].UnitPrice)
	assert.Equal(t, int64(90), carts["b"].Subtotal)
}

func TestCheapestRepricesFromChosenStore(t *testing.T) {
	book := stores.PriceTable{
		"a": {"milk": 80, "eggs": 300},
		"b": {"milk": 95},
	}
	items := []cart.LineItem{
		{Name: "Milk", UnitPrice: 100, OldUnitPrice: ptr(120), Quantity: 2, SourceType: cart.SourceProduct},
		{Name: "Eggs", UnitPrice: 250, OldUnitPrice: ptr(260), Quantity: 1, SourceType: cart.SourceProduct},
		{Name: "Rice", UnitPrice: 50, Quantity: 1, SourceType: cart.SourceProduct, StoreID: "b"},
	}
	carts, err := stores.NewAssigner(stores.Cheapest{Book: book}).Assign(items, candidates())
	require.NoError(t, err)

	a := carts["a"]
	require.NotNil(t, a)
	assert.Equal(t, int64(160), a.Subtotal, "milk is priced at store a's quote")
	assert.Equal(t, int64(240), a.OldSubtotal)

	b := carts["b"]
	require.NotNil(t, b)
	byKey := map[string]cart.LineItem{}
	for _, it := range b.Items {
		byKey[it.Key()] = it
	}
	assert.Equal(t, int64(250), byKey["eggs"].UnitPrice, "no quote at b keeps the item's price")
	assert.Equal(t, int64(50), byKey["rice"].UnitPrice, "pinned items keep their price")
	assert.Equal(t, int64(300), b.Subtotal)
}

func TestCheapestQuoteOverflowIsInvalid(t *testing.T) {
	book := stores.PriceTable{"a": {"milk": 1}, "b": {"milk": math.MaxInt64}, "c": {"milk": math.MaxInt64}}
	items := []cart.LineItem{{Name: "Milk", UnitPrice: 100, Quantity: 3, SourceType: cart.SourceProduct}}
	_, err := stores.NewAssigner(stores.Cheapest{Book: book}).Assign(items, candidates())
	require.NoError(t, err)

	book["a"]["milk"] = math.MaxInt64
	_, err = stores.NewAssigner(stores.Cheapest{Book: book}).Assign(items, candidates())
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestAssignPinnedStore(t *testing.T) {
	items := []cart.LineItem{{Name: "Milk", UnitPrice: 100, Quantity: 1, SourceType: cart.SourceProduct, StoreID: "c"}}
	carts, err := stores.NewAssigner(nil).Assign(items, candidates())
	require.NoError(t, err)
	require.Contains(t, carts, "c")

	items[0].StoreID = "nope"
	_, err = stores.NewAssigner(nil).Assign(items, candidates())
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestAssignEdgeCases(t *testing.T) {
	carts, err := stores.NewAssigner(nil).Assign(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, carts)

	onlyOther := []cart.LineItem{{Name: "Tray", UnitPrice: 10, Quantity: 1, SourceType: cart.SourceCatering}}
	carts, err = stores.NewAssigner(nil).Assign(onlyOther, nil)
	require.NoError(t, err)
	assert.Empty(t, carts)

	_, err = stores.NewAssigner(nil).Assign(sampleItems(), nil)
	require.ErrorIs(t, err, common.ErrInvalidInput)

	bad := []cart.LineItem{{Name: "Milk", UnitPrice: 10, Quantity: 0, SourceType: cart.SourceProduct}}
	_, err = stores.NewAssigner(nil).Assign(bad, candidates())
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestAssignRejectsOutOfRangePolicy(t *testing.T) {
	p := stores.PolicyFunc(func(int, cart.LineItem, []stores.Store) int { return 5 })
	_, err := stores.NewAssigner(p).Assign(sampleItems(), candidates())
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrInvalidInput))
}

func TestPartition(t *testing.T) {
	opt, other := stores.Partition(sampleItems())
	assert.Equal(t, []string{"Milk", "Eggs", "Rice", "Kale"}, names(opt))
	assert.Equal(t, []string{"Party tray"}, names(other))
}

func TestParsePolicy(t *testing.T) {
	p, err := stores.ParsePolicy("", nil)
	require.NoError(t, err)
	assert.IsType(t, stores.RoundRobin{}, p)

	p, err = stores.ParsePolicy("Cheapest", stores.PriceTable{})
	require.NoError(t, err)
	assert.IsType(t, stores.Cheapest{}, p)

	_, err = stores.ParsePolicy("lottery", nil)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func names(items []cart.LineItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}
