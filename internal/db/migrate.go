package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Statements are idempotent so Migrate can run on every startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS scan_types (
		id         uuid PRIMARY KEY,
		name       text NOT NULL,
		duration   int  NOT NULL CHECK (duration BETWEEN 5 AND 300),
		created_by text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,

	// Name uniqueness is case-insensitive.
	`CREATE UNIQUE INDEX IF NOT EXISTS scan_types_name_lower_uniq
		ON scan_types (lower(name))`,

	`CREATE TABLE IF NOT EXISTS scans (
		id           uuid PRIMARY KEY,
		scan_type    text NOT NULL,
		date         date NOT NULL,
		start_time   text NOT NULL,
		end_time     text NOT NULL,
		duration     int  NOT NULL,
		total_slots  int  NOT NULL CHECK (total_slots BETWEEN 1 AND 50),
		booked_slots int  NOT NULL DEFAULT 0 CHECK (booked_slots >= 0),
		notes        text NOT NULL DEFAULT '',
		created_by   text NOT NULL,
		created_at   timestamptz NOT NULL DEFAULT now(),
		updated_at   timestamptz NOT NULL DEFAULT now()
	)`,

	// No two blocks may occupy the same type/date/start.
	`CREATE UNIQUE INDEX IF NOT EXISTS scans_type_date_start_uniq
		ON scans (scan_type, date, start_time)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id              uuid PRIMARY KEY,
		scan_id         uuid NOT NULL REFERENCES scans (id),
		scan_type       text NOT NULL,
		scan_date       date NOT NULL,
		slot_number     int  NOT NULL CHECK (slot_number >= 1),
		slot_start_time text NOT NULL,
		slot_end_time   text NOT NULL,
		duration        int  NOT NULL,
		patient_name    text NOT NULL,
		patient_phone   text NOT NULL,
		notes           text NOT NULL DEFAULT '',
		user_id         text,
		booker_name     text NOT NULL DEFAULT '',
		booker_user_id  text,
		is_anonymous    boolean NOT NULL DEFAULT true,
		status          text NOT NULL DEFAULT 'confirmed'
			CHECK (status IN ('confirmed', 'cancelled', 'completed')),
		booked_at       timestamptz NOT NULL DEFAULT now(),
		updated_at      timestamptz NOT NULL DEFAULT now()
	)`,

	// The no-double-booking guarantee. Partial so a cancelled booking
	// frees its slot number for rebooking.
	`CREATE UNIQUE INDEX IF NOT EXISTS bookings_scan_slot_confirmed_uniq
		ON bookings (scan_id, slot_number)
		WHERE status = 'confirmed'`,

	`CREATE INDEX IF NOT EXISTS bookings_scan_date_idx ON bookings (scan_date)`,
	`CREATE INDEX IF NOT EXISTS bookings_user_id_idx ON bookings (user_id)`,
	`CREATE INDEX IF NOT EXISTS bookings_patient_phone_idx ON bookings (patient_phone)`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
