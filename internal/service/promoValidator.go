package service

import (
	"context"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/ds124wfegd/bookit/pkg/retry"
)

// PromoValidator resolves user supplied codes against the active promo table.
type PromoValidator struct {
	promos database.PromoRepository
	retry  retry.Policy
}

func NewPromoValidator(promos database.PromoRepository, policy retry.Policy) *PromoValidator {
	return &PromoValidator{promos: promos, retry: policy}
}

// Validate is case-insensitive and ignores surrounding whitespace.
// Unknown and inactive codes are both reported as ErrPromoNotFound.
func (v *PromoValidator) Validate(ctx context.Context, code string) (*entity.PromoCode, error) {
	normalized := entity.NormalizePromoCode(code)
	if normalized == "" {
		return nil, entity.NewValidationError("Promo code is required.", map[string]string{"code": "is required"})
	}

	promo, err := storeCall(ctx, v.retry, "get promo code", func(ctx context.Context) (*entity.PromoCode, error) {
		return v.promos.GetActiveByCode(ctx, normalized)
	})
	if err != nil {
		return nil, err
	}
	if !promo.IsActive {
		return nil, entity.ErrPromoNotFound
	}
	return promo, nil
}
