package entity

import (
	"strings"

	"github.com/shopspring/decimal"
)

type PromoCode struct {
	Code          string          `json:"code" db:"code"`
	DiscountType  DiscountType    `json:"discountType" db:"discount_type"`
	DiscountValue decimal.Decimal `json:"discountValue" db:"discount_value"`
	IsActive      bool            `json:"isActive" db:"is_active"`
}

// NormalizePromoCode returns the stored form of a user supplied code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
