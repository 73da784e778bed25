package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/bookit/internal/entity"
)

type ExperienceService interface {
	ListExperiences(ctx context.Context) ([]*entity.Experience, error)
	GetExperience(ctx context.Context, id string) (*entity.ExperienceDetails, error)
}

type PromoService interface {
	Validate(ctx context.Context, code string) (*entity.PromoCode, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingResult, error)
	GetBookingByRef(ctx context.Context, ref string) (*entity.Booking, error)
	QuotePrice(ctx context.Context, req *QuoteRequest) (*Quote, error)
}

type CapacityAuditor interface {
	AuditCapacity(ctx context.Context) ([]entity.CapacityDrift, error)
}

// CreateBookingRequest представляет данные для бронирования мест
type CreateBookingRequest struct {
	ExperienceID   string `json:"experienceId" validate:"required,notblank"`
	SlotID         string `json:"slotId" validate:"required,notblank"`
	UserName       string `json:"userName" validate:"required,notblank,max=255"`
	UserEmail      string `json:"userEmail" validate:"required,email,max=255"`
	Quantity       int    `json:"quantity" validate:"required,min=1"`
	PromoCode      string `json:"promoCode" validate:"max=64"`
	IdempotencyKey string `json:"-" validate:"max=255"`
}

type BookingResult struct {
	Booking  *entity.Booking
	Replayed bool
}

type QuoteRequest struct {
	ExperienceID string `json:"experienceId" validate:"required,notblank"`
	Quantity     int    `json:"quantity" validate:"required,min=1"`
	PromoCode    string `json:"promoCode" validate:"max=64"`
}

type Quote struct {
	Promo *entity.PromoCode     `json:"promo,omitempty"`
	Price entity.PriceBreakdown `json:"price"`
}

// TaskPublisher интерфейс для публикации задач в очередь
type TaskPublisher interface {
	Publish(ctx context.Context, task *Task) error
}

// Task представляет задачу для очереди
type Task struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	ExecuteAt  time.Time              `json:"execute_at"`
	MaxRetries int                    `json:"max_retries"`
	Attempts   int                    `json:"attempts"`
}

const TaskTypeBookingConfirmed = "booking_confirmed"

// EventPublisher ships domain events to the configured broker.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
}

type BookingConfirmedEvent struct {
	Type         string    `json:"type"`
	BookingRef   string    `json:"bookingRef"`
	ExperienceID string    `json:"experienceId"`
	SlotID       string    `json:"slotId"`
	Quantity     int       `json:"quantity"`
	PricePaid    int       `json:"pricePaid"`
	PromoCode    string    `json:"promoCode,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

const EventTypeBookingConfirmed = "booking.confirmed"
