package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)

// Constraint names as declared in pkg/postgres migrations.
const (
	bookingsPKey              = "bookings_pkey"
	bookingsRefKey            = "bookings_booking_ref_key"
	bookingsIdempotencyKeyKey = "bookings_idempotency_key_key"
	bookingsExperienceFKey    = "bookings_experience_id_fkey"
	bookingsSlotFKey          = "bookings_slot_id_fkey"
)

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) database.BookingRepository {
	return &bookingRepository{db: db}
}

// Create inserts a booking row on its own. Bookings taken through the API go
// through the capacity ledger's ReserveBooking instead.
func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	return insertBooking(ctx, r.db, booking)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const insertBookingQuery = `
	INSERT INTO bookings (
		id, experience_id, slot_id, user_name, user_email, quantity,
		subtotal, discount, tax, price_paid, promo_code, booking_ref,
		idempotency_key, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`

func insertBooking(ctx context.Context, db execer, booking *entity.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx, insertBookingQuery,
		booking.ID,
		booking.ExperienceID,
		booking.SlotID,
		booking.UserName,
		booking.UserEmail,
		booking.Quantity,
		booking.Subtotal,
		booking.Discount,
		booking.Tax,
		booking.PricePaid,
		nullString(booking.PromoCode),
		booking.BookingRef,
		nullString(booking.IdempotencyKey),
		now,
		now,
	)
	if err != nil {
		if mapped := mapConstraintViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func (r *bookingRepository) GetByRef(ctx context.Context, ref string) (*entity.Booking, error) {
	return r.getOne(ctx, "booking_ref", ref)
}

func (r *bookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Booking, error) {
	return r.getOne(ctx, "idempotency_key", key)
}

func (r *bookingRepository) RefExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE booking_ref = $1)`, ref).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check booking reference: %w", err)
	}
	return exists, nil
}

func (r *bookingRepository) SumQuantityBySlot(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT slot_id, COALESCE(SUM(quantity), 0)
		FROM bookings
		GROUP BY slot_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to sum booked seats: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int)
	for rows.Next() {
		var (
			slotID string
			booked int
		)
		if err := rows.Scan(&slotID, &booked); err != nil {
			return nil, fmt.Errorf("failed to scan booked seats: %w", err)
		}
		sums[slotID] = booked
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booked seats: %w", err)
	}

	return sums, nil
}

// getOne looks a booking up by one of its unique columns. column is never user input.
func (r *bookingRepository) getOne(ctx context.Context, column, value string) (*entity.Booking, error) {
	query := fmt.Sprintf(`
		SELECT
			id, experience_id, slot_id, user_name, user_email, quantity,
			subtotal, discount, tax, price_paid, promo_code, booking_ref,
			idempotency_key, created_at, updated_at
		FROM bookings
		WHERE %s = $1
	`, column)

	var (
		booking        entity.Booking
		promoCode      sql.NullString
		idempotencyKey sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&booking.ID,
		&booking.ExperienceID,
		&booking.SlotID,
		&booking.UserName,
		&booking.UserEmail,
		&booking.Quantity,
		&booking.Subtotal,
		&booking.Discount,
		&booking.Tax,
		&booking.PricePaid,
		&promoCode,
		&booking.BookingRef,
		&idempotencyKey,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	booking.PromoCode = promoCode.String
	booking.IdempotencyKey = idempotencyKey.String
	return &booking, nil
}

func mapConstraintViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case uniqueViolation:
		switch pqErr.Constraint {
		case bookingsRefKey:
			return entity.ErrBookingRefExists
		case bookingsIdempotencyKeyKey:
			return entity.ErrIdempotencyKeyExists
		case bookingsPKey:
			return entity.ErrBookingAlreadyExists
		default:
			return fmt.Errorf("%w: %s", entity.ErrBookingAlreadyExists, pqErr.Constraint)
		}
	case foreignKeyViolation:
		switch pqErr.Constraint {
		case bookingsExperienceFKey:
			return entity.ErrExperienceNotFound
		case bookingsSlotFKey:
			return entity.ErrSlotNotFound
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
