package entity

import (
	"time"
)

// Booking is immutable once created.
type Booking struct {
	ID             string    `json:"id" db:"id"`
	ExperienceID   string    `json:"experienceId" db:"experience_id"`
	SlotID         string    `json:"slotId" db:"slot_id"`
	UserName       string    `json:"userName" db:"user_name"`
	UserEmail      string    `json:"userEmail" db:"user_email"`
	Quantity       int       `json:"quantity" db:"quantity"`
	Subtotal       int       `json:"subtotal" db:"subtotal"`
	Discount       int       `json:"discount" db:"discount"`
	Tax            int       `json:"tax" db:"tax"`
	PricePaid      int       `json:"pricePaid" db:"price_paid"`
	PromoCode      string    `json:"promoCode,omitempty" db:"promo_code"`
	BookingRef     string    `json:"bookingRef" db:"booking_ref"`
	IdempotencyKey string    `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// PriceBreakdown holds whole-currency amounts; Total is what the customer pays.
type PriceBreakdown struct {
	Subtotal int `json:"subtotal"`
	Discount int `json:"discount"`
	Tax      int `json:"tax"`
	Total    int `json:"total"`
}

func (b *Booking) ApplyPrice(p PriceBreakdown) {
	b.Subtotal = p.Subtotal
	b.Discount = p.Discount
	b.Tax = p.Tax
	b.PricePaid = p.Total
}

func (b *Booking) Price() PriceBreakdown {
	return PriceBreakdown{
		Subtotal: b.Subtotal,
		Discount: b.Discount,
		Tax:      b.Tax,
		Total:    b.PricePaid,
	}
}
