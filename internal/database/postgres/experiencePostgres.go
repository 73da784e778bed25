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

type experienceRepository struct {
	db *sql.DB
}

func NewExperienceRepository(db *sql.DB) database.ExperienceRepository {
	return &experienceRepository{db: db}
}

func (r *experienceRepository) Create(ctx context.Context, experience *entity.Experience) error {
	query := `
		INSERT INTO experiences (id, name, description, price, image_url, location, location_tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if experience.ID == "" {
		experience.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		experience.ID,
		experience.Name,
		experience.Description,
		experience.Price,
		experience.ImageURL,
		experience.Location,
		experience.LocationTag,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create experience: %w", err)
	}

	experience.CreatedAt = now
	experience.UpdatedAt = now
	return nil
}

func (r *experienceRepository) GetByID(ctx context.Context, id string) (*entity.Experience, error) {
	query := `
		SELECT id, name, description, price, image_url, location, location_tag, created_at, updated_at
		FROM experiences
		WHERE id = $1
	`

	experience, err := scanExperience(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrExperienceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experience: %w", err)
	}
	return experience, nil
}

func (r *experienceRepository) GetAll(ctx context.Context) ([]*entity.Experience, error) {
	query := `
		SELECT id, name, description, price, image_url, location, location_tag, created_at, updated_at
		FROM experiences
		ORDER BY created_at, name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get experiences: %w", err)
	}
	defer rows.Close()

	experiences := make([]*entity.Experience, 0)
	for rows.Next() {
		experience, err := scanExperience(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experience: %w", err)
		}
		experiences = append(experiences, experience)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate experiences: %w", err)
	}

	return experiences, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExperience(row rowScanner) (*entity.Experience, error) {
	var experience entity.Experience
	err := row.Scan(
		&experience.ID,
		&experience.Name,
		&experience.Description,
		&experience.Price,
		&experience.ImageURL,
		&experience.Location,
		&experience.LocationTag,
		&experience.CreatedAt,
		&experience.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &experience, nil
}
