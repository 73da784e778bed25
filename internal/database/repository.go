package database

import (
	"context"
	"time"

	"github.com/ds124wfegd/bookit/internal/entity"
)

type ExperienceRepository interface {
	Create(ctx context.Context, experience *entity.Experience) error
	GetByID(ctx context.Context, id string) (*entity.Experience, error)
	GetAll(ctx context.Context) ([]*entity.Experience, error)
}

type SlotRepository interface {
	Create(ctx context.Context, slot *entity.Slot) error
	GetByID(ctx context.Context, id string) (*entity.Slot, error)
	GetAll(ctx context.Context) ([]*entity.Slot, error)

	// GetUpcomingByExperience returns slots starting at or after from, ordered by start time.
	GetUpcomingByExperience(ctx context.Context, experienceID string, from time.Time) ([]*entity.Slot, error)
}

type BookingRepository interface {
	// Create fails with ErrBookingRefExists, ErrIdempotencyKeyExists or
	// ErrBookingAlreadyExists when a unique column collides.
	Create(ctx context.Context, booking *entity.Booking) error
	GetByRef(ctx context.Context, ref string) (*entity.Booking, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.Booking, error)
	RefExists(ctx context.Context, ref string) (bool, error)

	// SumQuantityBySlot returns the committed seat count per slot id.
	SumQuantityBySlot(ctx context.Context) (map[string]int, error)
}

type PromoRepository interface {
	GetActiveByCode(ctx context.Context, code string) (*entity.PromoCode, error)
	Upsert(ctx context.Context, promo *entity.PromoCode) error
}

// CapacityLedger owns the reserved seat count of every slot.
type CapacityLedger interface {
	// Reserve atomically checks reserved+quantity <= capacity and commits it.
	// A refusal is returned as *entity.CapacityError.
	Reserve(ctx context.Context, slotID string, quantity int) (*entity.Reservation, error)

	// ReserveBooking takes booking.Quantity seats on booking.SlotID and stores
	// the booking as one unit: both are committed or neither is. Seats are never
	// handed back, so a call repeated with the same booking id fails with
	// ErrBookingAlreadyExists instead of counting the seats twice.
	ReserveBooking(ctx context.Context, booking *entity.Booking) (*entity.Reservation, error)

	GetRemainingCapacity(ctx context.Context, slotID string) (int, error)
}
