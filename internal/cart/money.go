package cart

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

var (
	maxUnits = decimal.NewFromInt(math.MaxInt64)
	minUnits = decimal.NewFromInt(math.MinInt64)
)

// LineTotal multiplies a whole-unit price by a possibly fractional quantity and
// rounds half away from zero to whole units. Amounts beyond int64 saturate;
// Validate rejects such lines before they are priced.
func LineTotal(unitPrice int64, quantity float64) int64 {
	return RoundUnits(lineAmount(unitPrice, quantity))
}

func lineAmount(unitPrice int64, quantity float64) decimal.Decimal {
	return decimal.NewFromInt(unitPrice).Mul(decimal.NewFromFloat(quantity))
}

// RoundUnits rounds d half away from zero to a whole currency unit, saturating
// at the int64 bounds.
func RoundUnits(d decimal.Decimal) int64 {
	n, err := Units(d)
	if err != nil {
		if d.IsNegative() {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return n
}

// Units rounds d like RoundUnits but fails with ErrInvalidInput when the
// result does not fit in int64.
func Units(d decimal.Decimal) (int64, error) {
	r := d.Round(0)
	if r.GreaterThan(maxUnits) || r.LessThan(minUnits) {
		return 0, fmt.Errorf("amount %s out of range: %w", r, common.ErrInvalidInput)
	}
	return r.IntPart(), nil
}

// AddUnits returns a+b, or ErrInvalidInput when the sum overflows int64.
func AddUnits(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("amount %d + %d out of range: %w", a, b, common.ErrInvalidInput)
	}
	return sum, nil
}

// Total is the line's current price times quantity.
func (it LineItem) Total() int64 {
	return LineTotal(it.UnitPrice, it.Quantity)
}

// OldTotal is the line's pre-sale price times quantity.
func (it LineItem) OldTotal() int64 {
	return LineTotal(it.OldPrice(), it.Quantity)
}
