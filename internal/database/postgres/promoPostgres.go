package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
)

type promoRepository struct {
	db *sql.DB
}

func NewPromoRepository(db *sql.DB) database.PromoRepository {
	return &promoRepository{db: db}
}

// GetActiveByCode never tells an inactive code apart from a missing one.
func (r *promoRepository) GetActiveByCode(ctx context.Context, code string) (*entity.PromoCode, error) {
	query := `
		SELECT code, discount_type, discount_value, is_active
		FROM promo_codes
		WHERE code = $1 AND is_active = TRUE
	`

	var promo entity.PromoCode
	err := r.db.QueryRowContext(ctx, query, entity.NormalizePromoCode(code)).Scan(
		&promo.Code,
		&promo.DiscountType,
		&promo.DiscountValue,
		&promo.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrPromoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	return &promo, nil
}

func (r *promoRepository) Upsert(ctx context.Context, promo *entity.PromoCode) error {
	query := `
		INSERT INTO promo_codes (code, discount_type, discount_value, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE
		SET discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			is_active = EXCLUDED.is_active
	`

	promo.Code = entity.NormalizePromoCode(promo.Code)
	if promo.Code == "" {
		return fmt.Errorf("failed to upsert promo code: empty code")
	}

	_, err := r.db.ExecContext(ctx, query, promo.Code, promo.DiscountType, promo.DiscountValue, promo.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert promo code: %w", err)
	}
	return nil
}
