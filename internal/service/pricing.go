package service

import (
	"fmt"

	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is applied to the discounted subtotal.
var DefaultTaxRate = decimal.RequireFromString("0.05")

var hundred = decimal.NewFromInt(100)

// PricingCalculator is pure: every method is deterministic and side effect free.
// Amounts are whole currency units; fractions are truncated, never rounded.
type PricingCalculator struct {
	taxRate decimal.Decimal
}

func NewPricingCalculator(taxRate string) (*PricingCalculator, error) {
	if taxRate == "" {
		return &PricingCalculator{taxRate: DefaultTaxRate}, nil
	}

	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return nil, fmt.Errorf("invalid tax rate %q: %w", taxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tax rate %s out of range [0, 1)", rate)
	}
	return &PricingCalculator{taxRate: rate}, nil
}

func (p *PricingCalculator) Subtotal(unitPrice, quantity int) int {
	return unitPrice * quantity
}

// Discount is capped at the subtotal and never negative.
func (p *PricingCalculator) Discount(promo *entity.PromoCode, subtotal int) int {
	if promo == nil || subtotal <= 0 {
		return 0
	}

	base := decimal.NewFromInt(int64(subtotal))

	var discount decimal.Decimal
	switch promo.DiscountType {
	case entity.DiscountPercent:
		discount = base.Mul(promo.DiscountValue).Div(hundred)
	case entity.DiscountFixed:
		discount = promo.DiscountValue
	default:
		return 0
	}

	if discount.IsNegative() {
		return 0
	}
	if discount.GreaterThan(base) {
		discount = base
	}
	return int(discount.IntPart())
}

// Tax = floor((subtotal - discount) * rate).
func (p *PricingCalculator) Tax(subtotal, discount int) int {
	taxable := subtotal - discount
	if taxable <= 0 {
		return 0
	}
	return int(decimal.NewFromInt(int64(taxable)).Mul(p.taxRate).Floor().IntPart())
}

func (p *PricingCalculator) Total(subtotal, discount, tax int) int {
	return subtotal - discount + tax
}

// Quote runs the whole calculation for one line item.
func (p *PricingCalculator) Quote(unitPrice, quantity int, promo *entity.PromoCode) entity.PriceBreakdown {
	subtotal := p.Subtotal(unitPrice, quantity)
	discount := p.Discount(promo, subtotal)
	tax := p.Tax(subtotal, discount)

	return entity.PriceBreakdown{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    p.Total(subtotal, discount, tax),
	}
}
