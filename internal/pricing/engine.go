// Package pricing composes the payable total of an optimized cart.
package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

// Money represents a monetary value in whole currency units.
type Money = int64

// Strategy is a user-selected global discount policy.
type Strategy string

const (
	StrategySavings  Strategy = "savings"
	StrategyTime     Strategy = "time"
	StrategyBalanced Strategy = "balanced"
)

// DefaultCateringDepositRate is the share of a catering line charged up front.
var DefaultCateringDepositRate = decimal.RequireFromString("0.30")

var strategyRates = map[Strategy]decimal.Decimal{
	StrategySavings:  decimal.RequireFromString("0.30"),
	StrategyTime:     decimal.RequireFromString("0.10"),
	StrategyBalanced: decimal.RequireFromString("0.20"),
}

// ParseStrategy accepts savings, time or balanced in any case.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := strategyRates[st]; !ok {
		return "", fmt.Errorf("unknown strategy %q: %w", s, common.ErrInvalidInput)
	}
	return st, nil
}

// Rate returns the strategy's fixed discount rate.
func (s Strategy) Rate() decimal.Decimal {
	return strategyRates[s]
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	_, ok := strategyRates[s]
	return ok
}

// Promo is a resolved promo code discount.
type Promo struct {
	Code string          `json:"code,omitempty"`
	Rate decimal.Decimal `json:"rate"`
}

// Input gathers everything Price needs.
type Input struct {
	StoreCarts   []stores.StoreCart
	OtherItems   []cart.LineItem
	Strategy     Strategy
	Promo        *Promo
	DeliveryFees Money
	// CateringDepositRate overrides DefaultCateringDepositRate when non-zero.
	CateringDepositRate decimal.Decimal
}

// Totals is the full price breakdown.
type Totals struct {
	Strategy         Strategy `json:"strategy"`
	StoreSubtotal    Money    `json:"storeSubtotal"`
	StoreOldSubtotal Money    `json:"storeOldSubtotal"`
	StoreSavings     Money    `json:"storeSavings"`
	OtherSubtotal    Money    `json:"otherSubtotal"`
	OtherOldSubtotal Money    `json:"otherOldSubtotal"`
	OtherSavings     Money    `json:"otherSavings"`
	StrategyDiscount Money    `json:"strategyDiscount"`
	PromoDiscount    Money    `json:"promoDiscount"`
	FinalTotal       Money    `json:"finalTotal"`
	DeliveryFees     Money    `json:"deliveryFees"`
	Payable          Money    `json:"payable"`
	Clamped          bool     `json:"clamped,omitempty"`
	// Warning carries ErrArithmeticAnomaly when FinalTotal was clamped.
	Warning error `json:"-"`
}

// Warnings renders Warning for JSON responses.
func (t Totals) Warnings() []string {
	if t.Warning == nil {
		return nil
	}
	return []string{t.Warning.Error()}
}

// Price computes totals. Only malformed input is an error; a negative total is
// clamped to zero and flagged through Totals.Warning.
func Price(in Input) (Totals, error) {
	if !in.Strategy.Valid() {
		return Totals{}, fmt.Errorf("unknown strategy %q: %w", in.Strategy, common.ErrInvalidInput)
	}
	if in.Promo != nil && (in.Promo.Rate.IsNegative() || in.Promo.Rate.GreaterThan(decimal.NewFromInt(1))) {
		return Totals{}, fmt.Errorf("promo rate %s outside [0,1]: %w", in.Promo.Rate, common.ErrInvalidInput)
	}
	if in.DeliveryFees < 0 {
		return Totals{}, fmt.Errorf("delivery fees must not be negative: %w", common.ErrInvalidInput)
	}
	deposit := in.CateringDepositRate
	if deposit.IsZero() {
		deposit = DefaultCateringDepositRate
	}
	if deposit.IsNegative() || deposit.GreaterThan(decimal.NewFromInt(1)) {
		return Totals{}, fmt.Errorf("catering deposit rate %s outside [0,1]: %w", deposit, common.ErrInvalidInput)
	}

	t := Totals{Strategy: in.Strategy, DeliveryFees: in.DeliveryFees}
	var err error
	for _, sc := range in.StoreCarts {
		if sc.Subtotal < 0 || sc.OldSubtotal < 0 {
			return Totals{}, fmt.Errorf("store %s subtotal must not be negative: %w", sc.Store.ID, common.ErrInvalidInput)
		}
		if t.StoreSubtotal, err = cart.AddUnits(t.StoreSubtotal, sc.Subtotal); err != nil {
			return Totals{}, err
		}
		if t.StoreOldSubtotal, err = cart.AddUnits(t.StoreOldSubtotal, sc.OldSubtotal); err != nil {
			return Totals{}, err
		}
	}
	t.StoreSavings = t.StoreOldSubtotal - t.StoreSubtotal

	for _, it := range in.OtherItems {
		if err := it.Validate(); err != nil {
			return Totals{}, err
		}
		sub, old := it.Total(), it.OldTotal()
		if it.SourceType == cart.SourceCatering {
			sub = cart.RoundUnits(decimal.NewFromInt(sub).Mul(deposit))
			old = cart.RoundUnits(decimal.NewFromInt(old).Mul(deposit))
		}
		if t.OtherSubtotal, err = cart.AddUnits(t.OtherSubtotal, sub); err != nil {
			return Totals{}, err
		}
		if t.OtherOldSubtotal, err = cart.AddUnits(t.OtherOldSubtotal, old); err != nil {
			return Totals{}, err
		}
	}
	t.OtherSavings = t.OtherOldSubtotal - t.OtherSubtotal

	gross, err := cart.AddUnits(t.StoreSubtotal, t.OtherSubtotal)
	if err != nil {
		return Totals{}, err
	}
	t.StrategyDiscount = cart.RoundUnits(decimal.NewFromInt(t.StoreSubtotal).Mul(in.Strategy.Rate()))
	if in.Promo != nil {
		t.PromoDiscount = cart.RoundUnits(decimal.NewFromInt(gross).Mul(in.Promo.Rate))
	}

	t.FinalTotal = gross - t.StrategyDiscount - t.PromoDiscount
	if t.FinalTotal < 0 {
		t.Warning = fmt.Errorf("final total %d below zero, clamped: %w", t.FinalTotal, common.ErrArithmeticAnomaly)
		t.FinalTotal = 0
		t.Clamped = true
	}
	if t.FinalTotal > math.MaxInt64-t.DeliveryFees {
		return Totals{}, fmt.Errorf("payable overflows: %w", common.ErrInvalidInput)
	}
	t.Payable = t.FinalTotal + t.DeliveryFees
	return t, nil
}
