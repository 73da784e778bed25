package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/google/uuid"
)

type bookingRepository struct {
	mu            sync.RWMutex
	byID          map[string]entity.Booking
	byRef         map[string]string
	byIdempotency map[string]string
}

func NewBookingRepository() database.BookingRepository {
	return &bookingRepository{
		byID:          make(map[string]entity.Booking),
		byRef:         make(map[string]string),
		byIdempotency: make(map[string]string),
	}
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[booking.ID]; ok {
		return entity.ErrBookingAlreadyExists
	}
	if _, ok := r.byRef[booking.BookingRef]; ok {
		return entity.ErrBookingRefExists
	}
	if booking.IdempotencyKey != "" {
		if _, ok := r.byIdempotency[booking.IdempotencyKey]; ok {
			return entity.ErrIdempotencyKeyExists
		}
	}

	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	r.byID[booking.ID] = *booking
	r.byRef[booking.BookingRef] = booking.ID
	if booking.IdempotencyKey != "" {
		r.byIdempotency[booking.IdempotencyKey] = booking.ID
	}
	return nil
}

func (r *bookingRepository) GetByRef(ctx context.Context, ref string) (*entity.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byRef[ref])
}

func (r *bookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byIdempotency[key])
}

func (r *bookingRepository) RefExists(ctx context.Context, ref string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byRef[ref]
	return ok, nil
}

func (r *bookingRepository) SumQuantityBySlot(ctx context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sums := make(map[string]int)
	for _, booking := range r.byID {
		sums[booking.SlotID] += booking.Quantity
	}
	return sums, nil
}

// lookup expects r.mu to be held.
func (r *bookingRepository) lookup(id string) (*entity.Booking, error) {
	booking, ok := r.byID[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	return &booking, nil
}
