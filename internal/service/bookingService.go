package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/ds124wfegd/bookit/pkg/retry"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxQuantity    = 20
	defaultPersistTimeout = 10 * time.Second
)

// BookingDeps собирает зависимости сервиса бронирования
type BookingDeps struct {
	Experiences database.ExperienceRepository
	Slots       database.SlotRepository
	Bookings    database.BookingRepository
	Ledger      database.CapacityLedger
	Promos      *PromoValidator
	Pricing     *PricingCalculator
	Refs        *RefGenerator

	// optional
	Tasks  TaskPublisher
	Events EventPublisher
}

type BookingOption func(*bookingService)

func WithMaxQuantity(n int) BookingOption {
	return func(s *bookingService) {
		if n > 0 {
			s.maxQuantity = n
		}
	}
}

func WithRetryPolicy(policy retry.Policy) BookingOption {
	return func(s *bookingService) { s.retry = policy }
}

// WithPersistTimeout bounds the reservation, the insert and the confirmation
// publish, which run detached from the client's cancellation.
func WithPersistTimeout(d time.Duration) BookingOption {
	return func(s *bookingService) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

func WithClock(now func() time.Time) BookingOption {
	return func(s *bookingService) { s.now = now }
}

type bookingService struct {
	experiences database.ExperienceRepository
	slots       database.SlotRepository
	bookings    database.BookingRepository
	ledger      database.CapacityLedger
	promos      *PromoValidator
	pricing     *PricingCalculator
	refs        *RefGenerator
	tasks       TaskPublisher
	events      EventPublisher

	maxQuantity    int
	persistTimeout time.Duration
	retry          retry.Policy
	now            func() time.Time
}

// NewBookingService создает новый экземпляр BookingService
func NewBookingService(deps BookingDeps, opts ...BookingOption) BookingService {
	s := &bookingService{
		experiences:    deps.Experiences,
		slots:          deps.Slots,
		bookings:       deps.Bookings,
		ledger:         deps.Ledger,
		promos:         deps.Promos,
		pricing:        deps.Pricing,
		refs:           deps.Refs,
		tasks:          deps.Tasks,
		events:         deps.Events,
		maxQuantity:    DefaultMaxQuantity,
		persistTimeout: defaultPersistTimeout,
		retry:          retry.NewPolicy(0, 0, 0),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBooking validates the request, prices it on the server, then reserves
// seats and persists the booking under a fresh reference in one atomic step.
func (s *bookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingResult, error) {
	if req == nil {
		return nil, entity.NewValidationError(msgAllFieldsRequired, nil)
	}
	normalizeBookingRequest(req)

	if err := validateStruct(req, "Invalid booking request."); err != nil {
		return nil, err
	}
	if req.Quantity > s.maxQuantity {
		return nil, entity.NewValidationError(
			fmt.Sprintf("You can book at most %d spots at once.", s.maxQuantity),
			map[string]string{"quantity": fmt.Sprintf("must be at most %d", s.maxQuantity)},
		)
	}

	// Повторный запрос с тем же ключом возвращает уже созданное бронирование
	if req.IdempotencyKey != "" {
		existing, err := s.replay(ctx, req)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	experience, slot, err := s.loadSlot(ctx, req.ExperienceID, req.SlotID)
	if err != nil {
		return nil, err
	}

	var promo *entity.PromoCode
	if req.PromoCode != "" {
		if promo, err = s.promos.Validate(ctx, req.PromoCode); err != nil {
			return nil, err
		}
	}
	price := s.pricing.Quote(experience.Price, req.Quantity, promo)

	// Запись брони не прерываем из-за отключения клиента
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	booking := &entity.Booking{
		ID:             uuid.NewString(),
		ExperienceID:   experience.ID,
		SlotID:         slot.ID,
		UserName:       req.UserName,
		UserEmail:      req.UserEmail,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
	}
	booking.ApplyPrice(price)
	if promo != nil {
		booking.PromoCode = promo.Code
	}

	result, reservation, err := s.persist(persistCtx, booking, req)
	if err != nil {
		return nil, err
	}
	if result.Replayed {
		return result, nil
	}

	fields := logrus.Fields{
		"booking_ref":   result.Booking.BookingRef,
		"experience_id": experience.ID,
		"slot_id":       slot.ID,
		"quantity":      booking.Quantity,
		"price_paid":    booking.PricePaid,
	}
	if reservation != nil {
		fields["remaining"] = reservation.RemainingAfter
	}
	logrus.WithFields(fields).Info("Booking confirmed")

	s.publishConfirmation(persistCtx, result.Booking, experience, slot)
	return result, nil
}

// persist reserves the seats and inserts the booking in one ledger call,
// drawing a new reference whenever the unique index on booking_ref rejects the
// previous one. The booking id is fixed across retries, so a call whose first
// attempt committed resolves to that booking instead of taking seats again.
// The reservation is nil when the booking was found already stored.
func (s *bookingService) persist(ctx context.Context, booking *entity.Booking, req *CreateBookingRequest) (*BookingResult, *entity.Reservation, error) {
	for attempt := 0; attempt < s.refs.Attempts(); attempt++ {
		ref, err := s.refs.GenerateUnique(ctx)
		if err != nil {
			return nil, nil, err
		}
		booking.BookingRef = ref

		reservation, err := storeCall(ctx, s.retry, "create booking", func(ctx context.Context) (*entity.Reservation, error) {
			return s.ledger.ReserveBooking(ctx, booking)
		})
		switch {
		case err == nil:
			return &BookingResult{Booking: booking}, reservation, nil

		case errors.Is(err, entity.ErrBookingAlreadyExists), errors.Is(err, entity.ErrBookingRefExists):
			// A retried call may collide with its own committed first attempt
			own, lookupErr := s.ownBooking(ctx, ref, booking.ID)
			if lookupErr != nil {
				return nil, nil, lookupErr
			}
			if own != nil {
				return &BookingResult{Booking: own}, nil, nil
			}
			logrus.WithField("booking_ref", ref).Warn("Booking reference collision, drawing a new one")

		case errors.Is(err, entity.ErrIdempotencyKeyExists):
			existing, lookupErr := storeCall(ctx, s.retry, "get booking by idempotency key", func(ctx context.Context) (*entity.Booking, error) {
				return s.bookings.GetByIdempotencyKey(ctx, booking.IdempotencyKey)
			})
			if lookupErr != nil {
				return nil, nil, lookupErr
			}
			if existing.ID == booking.ID {
				return &BookingResult{Booking: existing}, nil, nil
			}
			if !sameBookingRequest(existing, req) {
				return nil, nil, fmt.Errorf("%w: %s", entity.ErrIdempotencyKeyExists, booking.IdempotencyKey)
			}
			return &BookingResult{Booking: existing, Replayed: true}, nil, nil

		case errors.Is(err, entity.ErrCapacityExceeded),
			errors.Is(err, entity.ErrSlotNotFound),
			errors.Is(err, entity.ErrExperienceNotFound),
			errors.Is(err, entity.ErrValidation),
			errors.Is(err, entity.ErrStoreUnavailable):
			// При ErrStoreUnavailable бронь могла сохраниться: повтор с тем же ключом ее вернет
			return nil, nil, err

		default:
			return nil, nil, fmt.Errorf("failed to create booking: %w", err)
		}
	}
	return nil, nil, entity.ErrRefGenerationExhausted
}

func (s *bookingService) ownBooking(ctx context.Context, ref, id string) (*entity.Booking, error) {
	stored, err := storeCall(ctx, s.retry, "get booking by ref", func(ctx context.Context) (*entity.Booking, error) {
		return s.bookings.GetByRef(ctx, ref)
	})
	if errors.Is(err, entity.ErrBookingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if stored.ID != id {
		return nil, nil
	}
	return stored, nil
}

func (s *bookingService) replay(ctx context.Context, req *CreateBookingRequest) (*BookingResult, error) {
	existing, err := storeCall(ctx, s.retry, "get booking by idempotency key", func(ctx context.Context) (*entity.Booking, error) {
		return s.bookings.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	})
	if errors.Is(err, entity.ErrBookingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !sameBookingRequest(existing, req) {
		return nil, fmt.Errorf("%w: %s", entity.ErrIdempotencyKeyExists, req.IdempotencyKey)
	}
	return &BookingResult{Booking: existing, Replayed: true}, nil
}

// loadSlot returns the experience and one of its slots that has not started yet.
func (s *bookingService) loadSlot(ctx context.Context, experienceID, slotID string) (*entity.Experience, *entity.Slot, error) {
	experience, err := storeCall(ctx, s.retry, "get experience", func(ctx context.Context) (*entity.Experience, error) {
		return s.experiences.GetByID(ctx, experienceID)
	})
	if err != nil {
		return nil, nil, err
	}

	slot, err := storeCall(ctx, s.retry, "get slot", func(ctx context.Context) (*entity.Slot, error) {
		return s.slots.GetByID(ctx, slotID)
	})
	if err != nil {
		return nil, nil, err
	}
	if slot.ExperienceID != experience.ID {
		return nil, nil, entity.ErrSlotNotFound
	}
	if !slot.StartTime.After(s.now()) {
		return nil, nil, entity.NewValidationError(
			"This slot has already started.",
			map[string]string{"slotId": "must start in the future"},
		)
	}
	return experience, slot, nil
}

func (s *bookingService) GetBookingByRef(ctx context.Context, ref string) (*entity.Booking, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return nil, entity.NewValidationError("Booking reference is required.", map[string]string{"ref": "is required"})
	}

	return storeCall(ctx, s.retry, "get booking by ref", func(ctx context.Context) (*entity.Booking, error) {
		return s.bookings.GetByRef(ctx, ref)
	})
}

// QuotePrice prices a prospective booking without touching capacity.
func (s *bookingService) QuotePrice(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	if req == nil {
		return nil, entity.NewValidationError(msgAllFieldsRequired, nil)
	}
	req.ExperienceID = strings.TrimSpace(req.ExperienceID)
	req.PromoCode = strings.TrimSpace(req.PromoCode)

	if err := validateStruct(req, "Invalid quote request."); err != nil {
		return nil, err
	}
	if req.Quantity > s.maxQuantity {
		return nil, entity.NewValidationError(
			fmt.Sprintf("You can book at most %d spots at once.", s.maxQuantity),
			map[string]string{"quantity": fmt.Sprintf("must be at most %d", s.maxQuantity)},
		)
	}

	experience, err := storeCall(ctx, s.retry, "get experience", func(ctx context.Context) (*entity.Experience, error) {
		return s.experiences.GetByID(ctx, req.ExperienceID)
	})
	if err != nil {
		return nil, err
	}

	quote := &Quote{}
	if req.PromoCode != "" {
		if quote.Promo, err = s.promos.Validate(ctx, req.PromoCode); err != nil {
			return nil, err
		}
	}
	quote.Price = s.pricing.Quote(experience.Price, req.Quantity, quote.Promo)
	return quote, nil
}

// publishConfirmation уведомляет клиента и внешние системы; ошибки только логируются
func (s *bookingService) publishConfirmation(ctx context.Context, booking *entity.Booking, experience *entity.Experience, slot *entity.Slot) {
	now := s.now()

	if s.tasks != nil {
		task := &Task{
			ID:   fmt.Sprintf("%s_%s", TaskTypeBookingConfirmed, booking.BookingRef),
			Type: TaskTypeBookingConfirmed,
			Data: map[string]interface{}{
				"booking_id":      booking.ID,
				"booking_ref":     booking.BookingRef,
				"experience_name": experience.Name,
				"location":        experience.Location,
				"start_time":      slot.StartTime.Format(time.RFC3339),
				"user_name":       booking.UserName,
				"user_email":      booking.UserEmail,
				"quantity":        booking.Quantity,
				"price_paid":      booking.PricePaid,
			},
			ExecuteAt:  now,
			MaxRetries: 3,
		}
		if err := s.tasks.Publish(ctx, task); err != nil {
			logrus.WithError(err).WithField("booking_ref", booking.BookingRef).Error("Failed to enqueue booking confirmation")
		}
	}

	if s.events != nil {
		event := BookingConfirmedEvent{
			Type:         EventTypeBookingConfirmed,
			BookingRef:   booking.BookingRef,
			ExperienceID: booking.ExperienceID,
			SlotID:       booking.SlotID,
			Quantity:     booking.Quantity,
			PricePaid:    booking.PricePaid,
			PromoCode:    booking.PromoCode,
			OccurredAt:   now.UTC(),
		}
		if err := s.events.Publish(ctx, booking.BookingRef, event); err != nil {
			logrus.WithError(err).WithField("booking_ref", booking.BookingRef).Error("Failed to publish booking event")
		}
	}
}

func normalizeBookingRequest(req *CreateBookingRequest) {
	req.ExperienceID = strings.TrimSpace(req.ExperienceID)
	req.SlotID = strings.TrimSpace(req.SlotID)
	req.UserName = strings.TrimSpace(req.UserName)
	req.UserEmail = strings.TrimSpace(req.UserEmail)
	req.PromoCode = strings.TrimSpace(req.PromoCode)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
}

// sameBookingRequest reports whether a stored booking answers req.
func sameBookingRequest(b *entity.Booking, req *CreateBookingRequest) bool {
	return b.ExperienceID == req.ExperienceID &&
		b.SlotID == req.SlotID &&
		b.Quantity == req.Quantity &&
		strings.EqualFold(b.UserEmail, req.UserEmail) &&
		b.PromoCode == entity.NormalizePromoCode(req.PromoCode)
}
