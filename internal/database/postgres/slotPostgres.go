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
)

type slotRepository struct {
	db *sql.DB
}

func NewSlotRepository(db *sql.DB) database.SlotRepository {
	return &slotRepository{db: db}
}

func (r *slotRepository) Create(ctx context.Context, slot *entity.Slot) error {
	query := `
		INSERT INTO slots (id, experience_id, start_time, capacity, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.Capacity < 0 {
		return fmt.Errorf("failed to create slot: negative capacity %d", slot.Capacity)
	}
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query, slot.ID, slot.ExperienceID, slot.StartTime, slot.Capacity, now)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}

	slot.CreatedAt = now
	return nil
}

func (r *slotRepository) GetByID(ctx context.Context, id string) (*entity.Slot, error) {
	query := `
		SELECT id, experience_id, start_time, capacity, created_at
		FROM slots
		WHERE id = $1
	`

	slot, err := scanSlot(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

func (r *slotRepository) GetAll(ctx context.Context) ([]*entity.Slot, error) {
	query := `
		SELECT id, experience_id, start_time, capacity, created_at
		FROM slots
		ORDER BY start_time
	`
	return r.query(ctx, query)
}

func (r *slotRepository) GetUpcomingByExperience(ctx context.Context, experienceID string, from time.Time) ([]*entity.Slot, error) {
	query := `
		SELECT id, experience_id, start_time, capacity, created_at
		FROM slots
		WHERE experience_id = $1 AND start_time >= $2
		ORDER BY start_time
	`
	return r.query(ctx, query, experienceID, from)
}

func (r *slotRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Slot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get slots: %w", err)
	}
	defer rows.Close()

	slots := make([]*entity.Slot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slots: %w", err)
	}

	return slots, nil
}

func scanSlot(row rowScanner) (*entity.Slot, error) {
	var slot entity.Slot
	if err := row.Scan(&slot.ID, &slot.ExperienceID, &slot.StartTime, &slot.Capacity, &slot.CreatedAt); err != nil {
		return nil, err
	}
	return &slot, nil
}
