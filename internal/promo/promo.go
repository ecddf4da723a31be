// Package promo resolves promo codes into pricing discounts.
package promo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/pricing"
)

var (
	// ErrUnknownCode is returned when no rule exists for a code.
	ErrUnknownCode = errors.New("promo code unknown")
	// ErrInactive is returned before the rule's validity window opens.
	ErrInactive = errors.New("promo code not active")
	// ErrExpired is returned after the validity window closed.
	ErrExpired = errors.New("promo code expired")
	// ErrMinimumSpendUnmet is returned when the combined subtotal is below the rule minimum.
	ErrMinimumSpendUnmet = errors.New("promo minimum spend not met")
)

// Rule is a named percentage discount.
type Rule struct {
	Code      string
	RateBps   int32
	MinSpend  int64
	ValidFrom *time.Time
	ValidTo   *time.Time
}

// Validate checks the rule against the instant and the combined pre-strategy subtotal.
func (r Rule) Validate(now time.Time, subtotal int64) error {
	if subtotal < r.MinSpend {
		return ErrMinimumSpendUnmet
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrInactive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrExpired
	}
	return nil
}

// Rate converts the basis points into a fraction.
func (r Rule) Rate() decimal.Decimal {
	return decimal.New(int64(r.RateBps), -4)
}

// Book is an immutable set of rules keyed by upper-cased code.
type Book struct {
	rules map[string]Rule
	now   func() time.Time
}

// NewBook indexes rules. Rates outside 0..10000 bps are rejected.
func NewBook(rules ...Rule) (*Book, error) {
	b := &Book{rules: make(map[string]Rule, len(rules)), now: time.Now}
	for _, r := range rules {
		code := normalize(r.Code)
		if code == "" {
			return nil, fmt.Errorf("promo code is empty: %w", common.ErrInvalidInput)
		}
		if r.RateBps < 0 || r.RateBps > 10000 {
			return nil, fmt.Errorf("promo %s rate %d bps out of range: %w", code, r.RateBps, common.ErrInvalidInput)
		}
		r.Code = code
		b.rules[code] = r
	}
	return b, nil
}

// ParseBook reads "CODE:bps[:minSpend],..." as found in PROMO_CODES.
func ParseBook(spec string) (*Book, error) {
	var rules []Rule
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("promo entry %q: want CODE:bps[:minSpend]: %w", part, common.ErrInvalidInput)
		}
		bps, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("promo entry %q: %w", part, errors.Join(common.ErrInvalidInput, err))
		}
		rule := Rule{Code: fields[0], RateBps: int32(bps)}
		if len(fields) == 3 {
			rule.MinSpend, err = strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("promo entry %q: %w", part, errors.Join(common.ErrInvalidInput, err))
			}
		}
		rules = append(rules, rule)
	}
	return NewBook(rules...)
}

// WithClock returns a copy of the book that reads time from now.
func (b *Book) WithClock(now func() time.Time) *Book {
	return &Book{rules: b.rules, now: now}
}

// Resolve turns a code into a pricing promo for the given combined subtotal.
// An empty code resolves to nil. Ineligible codes are input errors.
func (b *Book) Resolve(code string, subtotal int64) (*pricing.Promo, error) {
	code = normalize(code)
	if code == "" {
		return nil, nil
	}
	if b == nil {
		return nil, fmt.Errorf("%s: %w", code, errors.Join(common.ErrInvalidInput, ErrUnknownCode))
	}
	rule, ok := b.rules[code]
	if !ok {
		return nil, fmt.Errorf("%s: %w", code, errors.Join(common.ErrInvalidInput, ErrUnknownCode))
	}
	if err := rule.Validate(b.now(), subtotal); err != nil {
		return nil, fmt.Errorf("%s: %w", code, errors.Join(common.ErrInvalidInput, err))
	}
	return &pricing.Promo{Code: rule.Code, Rate: rule.Rate()}, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
