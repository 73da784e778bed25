package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ds124wfegd/bookit/internal/database"
	"github.com/ds124wfegd/bookit/internal/entity"
)

// The check and the increment are one statement, so concurrent reservations on
// the same row are serialized by the row lock Postgres takes for the UPDATE.
const reserveQuery = `
	UPDATE slots
	SET reserved = reserved + $2
	WHERE id = $1 AND reserved + $2 <= capacity
	RETURNING capacity - reserved
`

const remainingQuery = `SELECT capacity - reserved FROM slots WHERE id = $1`

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type capacityLedger struct {
	db *sql.DB
}

func NewCapacityLedger(db *sql.DB) database.CapacityLedger {
	return &capacityLedger{db: db}
}

func (l *capacityLedger) Reserve(ctx context.Context, slotID string, quantity int) (*entity.Reservation, error) {
	if quantity < 1 {
		return nil, errQuantity()
	}
	return reserve(ctx, l.db, slotID, quantity)
}

// ReserveBooking runs the booking insert and the seat increment in one
// transaction. The insert goes first: a call repeated after a lost commit
// stops on the booking's primary key and never reaches the counter.
func (l *capacityLedger) ReserveBooking(ctx context.Context, booking *entity.Booking) (*entity.Reservation, error) {
	if booking.Quantity < 1 {
		return nil, errQuantity()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin booking transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertBooking(ctx, tx, booking); err != nil {
		return nil, err
	}

	reservation, err := reserve(ctx, tx, booking.SlotID, booking.Quantity)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking: %w", err)
	}
	return reservation, nil
}

func (l *capacityLedger) GetRemainingCapacity(ctx context.Context, slotID string) (int, error) {
	return remaining(ctx, l.db, slotID)
}

func reserve(ctx context.Context, db queryRower, slotID string, quantity int) (*entity.Reservation, error) {
	var left int
	err := db.QueryRowContext(ctx, reserveQuery, slotID, quantity).Scan(&left)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the slot is missing or the seats are gone; the follow-up read
		// tells which and reports the live remaining count.
		current, err := remaining(ctx, db, slotID)
		if err != nil {
			return nil, err
		}
		return nil, &entity.CapacityError{Remaining: current}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve seats: %w", err)
	}

	return &entity.Reservation{SlotID: slotID, Quantity: quantity, RemainingAfter: left}, nil
}

func remaining(ctx context.Context, db queryRower, slotID string) (int, error) {
	var left int
	err := db.QueryRowContext(ctx, remainingQuery, slotID).Scan(&left)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, entity.ErrSlotNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get remaining capacity: %w", err)
	}
	return left, nil
}

func errQuantity() error {
	return entity.NewValidationError("Quantity must be at least 1.", map[string]string{"quantity": "must be at least 1"})
}
