package service

import (
	"context"
	"testing"
	"time"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/database/memory"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/ds124wfegd/bookit/pkg/retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testPolicy = retry.NewPolicy(3, time.Millisecond, 0)

// fixture wires the in-memory store behind the services.
type fixture struct {
	experiences database.ExperienceRepository
	slots       database.SlotRepository
	bookings    *flakyBookings
	promos      database.PromoRepository
	ledger      *memory.CapacityLedger

	experience *entity.Experience
	slot       *entity.Slot
}

func newFixture(t *testing.T, price, capacity int) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		experiences: memory.NewExperienceRepository(),
		slots:       memory.NewSlotRepository(),
		bookings:    &flakyBookings{BookingRepository: memory.NewBookingRepository()},
		promos:      memory.NewPromoRepository(),
	}
	// the ledger writes through the same wrapper, so tests can fail its inserts
	f.ledger = memory.NewCapacityLedger(f.slots, f.bookings)
	t.Cleanup(f.ledger.Close)

	f.experience = &entity.Experience{Name: "Kayaking in the Mangroves", Price: price, Location: "Udupi"}
	require.NoError(t, f.experiences.Create(ctx, f.experience))
	f.slot = f.addSlot(t, f.experience.ID, time.Now().Add(48*time.Hour), capacity)

	require.NoError(t, f.promos.Upsert(ctx, &entity.PromoCode{
		Code: "SAVE10", DiscountType: entity.DiscountPercent, DiscountValue: decimal.NewFromInt(10), IsActive: true,
	}))
	require.NoError(t, f.promos.Upsert(ctx, &entity.PromoCode{
		Code: "FLAT100", DiscountType: entity.DiscountFixed, DiscountValue: decimal.NewFromInt(100), IsActive: true,
	}))
	require.NoError(t, f.promos.Upsert(ctx, &entity.PromoCode{
		Code: "OLD50", DiscountType: entity.DiscountPercent, DiscountValue: decimal.NewFromInt(50), IsActive: false,
	}))

	return f
}

func (f *fixture) addSlot(t *testing.T, experienceID string, start time.Time, capacity int) *entity.Slot {
	t.Helper()
	slot := &entity.Slot{ExperienceID: experienceID, StartTime: start, Capacity: capacity}
	require.NoError(t, f.slots.Create(context.Background(), slot))
	return slot
}

func (f *fixture) remaining(t *testing.T, slotID string) int {
	t.Helper()
	remaining, err := f.ledger.GetRemainingCapacity(context.Background(), slotID)
	require.NoError(t, err)
	return remaining
}

func (f *fixture) promoValidator() *PromoValidator {
	return NewPromoValidator(f.promos, testPolicy)
}

func (f *fixture) bookingService(t *testing.T, deps BookingDeps, opts ...BookingOption) BookingService {
	t.Helper()
	calc, err := NewPricingCalculator("0.05")
	require.NoError(t, err)

	if deps.Experiences == nil {
		deps.Experiences = f.experiences
	}
	if deps.Slots == nil {
		deps.Slots = f.slots
	}
	if deps.Bookings == nil {
		deps.Bookings = f.bookings
	}
	if deps.Ledger == nil {
		deps.Ledger = f.ledger
	}
	deps.Promos = f.promoValidator()
	deps.Pricing = calc
	deps.Refs = NewRefGenerator(deps.Bookings, DefaultRefTries, testPolicy)

	opts = append([]BookingOption{WithRetryPolicy(testPolicy)}, opts...)
	return NewBookingService(deps, opts...)
}

func (f *fixture) request(quantity int) *CreateBookingRequest {
	return &CreateBookingRequest{
		ExperienceID: f.experience.ID,
		SlotID:       f.slot.ID,
		UserName:     "Asha Rao",
		UserEmail:    "asha@example.com",
		Quantity:     quantity,
	}
}
