package cart_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
)

func ptr(v int64) *int64 { return &v }

func TestValidateRejectsLineTotalBeyondInt64(t *testing.T) {
	huge := cart.LineItem{Name: "Gold bar", UnitPrice: 5e18, Quantity: 3, SourceType: cart.SourceProduct}
	require.ErrorIs(t, huge.Validate(), common.ErrInvalidInput)
	assert.False(t, huge.Valid())

	onSale := cart.LineItem{Name: "Gold bar", UnitPrice: 1, OldUnitPrice: ptr(math.MaxInt64), Quantity: 2, SourceType: cart.SourceProduct}
	require.ErrorIs(t, onSale.Validate(), common.ErrInvalidInput)

	edge := cart.LineItem{Name: "Gold bar", UnitPrice: math.MaxInt64, Quantity: 1, SourceType: cart.SourceProduct}
	require.NoError(t, edge.Validate())
	assert.Equal(t, int64(math.MaxInt64), edge.Total())
}

func TestRoundUnitsSaturates(t *testing.T) {
	assert.Equal(t, int64(math.MaxInt64), cart.LineTotal(5e18, 3))
	assert.Equal(t, int64(math.MinInt64), cart.RoundUnits(decimal.NewFromInt(math.MinInt64).Mul(decimal.NewFromInt(2))))

	_, err := cart.Units(decimal.NewFromInt(math.MaxInt64).Add(decimal.NewFromInt(1)))
	require.ErrorIs(t, err, common.ErrInvalidInput)
	n, err := cart.Units(decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAddUnitsDetectsOverflow(t *testing.T) {
	sum, err := cart.AddUnits(40, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sum)

	_, err = cart.AddUnits(math.MaxInt64, 1)
	require.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = cart.AddUnits(math.MinInt64, -1)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}
