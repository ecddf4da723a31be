package cart

import (
	"fmt"
	"math"
	"strings"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// SourceType tells where a line item came from and whether it takes part in
// multi-store optimization.
type SourceType string

const (
	SourceProduct           SourceType = "product"
	SourceRecipeIngredients SourceType = "recipe-ingredients"
	SourceMealPlanDIY       SourceType = "meal-plan-diy"
	SourceCatering          SourceType = "catering"
	SourceFarmProduct       SourceType = "farm-product"
	SourceMealPlan          SourceType = "meal-plan"
)

// Optimizable reports whether items of this source are assigned to stores.
func (s SourceType) Optimizable() bool {
	switch s {
	case SourceProduct, SourceRecipeIngredients, SourceMealPlanDIY:
		return true
	default:
		return false
	}
}

// LineItem is a single cart row. Prices are whole currency units.
type LineItem struct {
	ID           string     `json:"id,omitempty"`
	Name         string     `json:"name"`
	UnitPrice    int64      `json:"unitPrice"`
	OldUnitPrice *int64     `json:"oldUnitPrice,omitempty"`
	Quantity     float64    `json:"quantity"`
	Unit         string     `json:"unit,omitempty"`
	Category     string     `json:"category,omitempty"`
	SourceType   SourceType `json:"sourceType"`
	StoreID      string     `json:"storeId,omitempty"`
}

// Key returns the merge key for the item: its trimmed, lower-cased name.
func (it LineItem) Key() string {
	return Key(it.Name)
}

// Key normalises an item name into a merge key.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// OldPrice returns the pre-sale unit price, falling back to the current one.
func (it LineItem) OldPrice() int64 {
	if it.OldUnitPrice != nil {
		return *it.OldUnitPrice
	}
	return it.UnitPrice
}

// Valid reports whether the item can take part in merging and pricing.
func (it LineItem) Valid() bool {
	return it.Validate() == nil
}

// Validate checks the line item invariants.
func (it LineItem) Validate() error {
	if it.Key() == "" {
		return fmt.Errorf("item name is empty: %w", common.ErrInvalidInput)
	}
	if math.IsNaN(it.Quantity) || math.IsInf(it.Quantity, 0) || it.Quantity <= 0 {
		return fmt.Errorf("item %q quantity must be positive: %w", it.Name, common.ErrInvalidInput)
	}
	if it.UnitPrice < 0 {
		return fmt.Errorf("item %q price must not be negative: %w", it.Name, common.ErrInvalidInput)
	}
	if it.OldUnitPrice != nil && *it.OldUnitPrice < 0 {
		return fmt.Errorf("item %q old price must not be negative: %w", it.Name, common.ErrInvalidInput)
	}
	for _, price := range []int64{it.UnitPrice, it.OldPrice()} {
		if _, err := Units(lineAmount(price, it.Quantity)); err != nil {
			return fmt.Errorf("item %q total: %w", it.Name, err)
		}
	}
	return nil
}

// Index maps items by merge key. Later duplicates overwrite earlier ones.
func Index(items []LineItem) map[string]LineItem {
	out := make(map[string]LineItem, len(items))
	for _, it := range items {
		out[it.Key()] = it
	}
	return out
}
