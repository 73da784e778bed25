package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/bookit/config"
	"github.com/ds124wfegd/bookit/internal/entity"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{"host": cfg.Host, "dbname": cfg.DBName}).Info("Successfully connected to PostgreSQL")
	return db, nil
}

// Migrations is the ordered schema. Constraint names on bookings are relied on
// by the repository to tell unique violations apart.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS experiences (
		id TEXT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL CHECK (price > 0),
		image_url TEXT NOT NULL DEFAULT '',
		location VARCHAR(255) NOT NULL DEFAULT '',
		location_tag VARCHAR(100) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS slots (
		id TEXT PRIMARY KEY,
		experience_id TEXT NOT NULL REFERENCES experiences(id) ON DELETE CASCADE,
		start_time TIMESTAMPTZ NOT NULL,
		capacity INTEGER NOT NULL DEFAULT %d CHECK (capacity >= 0),
		reserved INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT slots_reserved_within_capacity CHECK (reserved >= 0 AND reserved <= capacity)
	)`, entity.DefaultSlotCapacity),

	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT NOT NULL,
		experience_id TEXT NOT NULL REFERENCES experiences(id),
		slot_id TEXT NOT NULL REFERENCES slots(id),
		user_name VARCHAR(255) NOT NULL,
		user_email VARCHAR(255) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		subtotal INTEGER NOT NULL DEFAULT 0,
		discount INTEGER NOT NULL DEFAULT 0,
		tax INTEGER NOT NULL DEFAULT 0,
		price_paid INTEGER NOT NULL CHECK (price_paid >= 0),
		promo_code VARCHAR(64),
		booking_ref VARCHAR(16) NOT NULL,
		idempotency_key VARCHAR(255),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT bookings_pkey PRIMARY KEY (id),
		CONSTRAINT bookings_booking_ref_key UNIQUE (booking_ref),
		CONSTRAINT bookings_idempotency_key_key UNIQUE (idempotency_key)
	)`,

	`CREATE TABLE IF NOT EXISTS promo_codes (
		code VARCHAR(64) PRIMARY KEY,
		discount_type VARCHAR(16) NOT NULL CHECK (discount_type IN ('percent', 'fixed')),
		discount_value NUMERIC(12, 2) NOT NULL CHECK (discount_value >= 0),
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,

	// Indexes
	`CREATE INDEX IF NOT EXISTS idx_slots_experience_start ON slots(experience_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_slot_id ON bookings(slot_id)`,
}

func RunMigrations(db *sql.DB) error {
	for _, migration := range Migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

// ResetData wipes every table; used by the seeder before loading sample data.
func ResetData(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `TRUNCATE bookings, slots, experiences, promo_codes`); err != nil {
		return fmt.Errorf("failed to reset data: %w", err)
	}
	return nil
}
