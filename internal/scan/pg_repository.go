package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanTypeRow(row pgx.Row) (*ScanType, error) {
	var st ScanType

	err := row.Scan(
		&st.ID,
		&st.Name,
		&st.Duration,
		&st.CreatedBy,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScanTypeNotFound
		}
		return nil, err
	}

	return &st, nil
}

func scanRow(row pgx.Row) (*Scan, error) {
	var s Scan

	err := row.Scan(
		&s.ID,
		&s.ScanType,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Duration,
		&s.TotalSlots,
		&s.BookedSlots,
		&s.Notes,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScanNotFound
		}
		return nil, err
	}

	return &s, nil
}

func bookingRow(row pgx.Row) (*Booking, error) {
	var b Booking
	var userID, bookerUserID *string

	err := row.Scan(
		&b.ID,
		&b.ScanID,
		&b.ScanType,
		&b.ScanDate,
		&b.SlotNumber,
		&b.SlotStartTime,
		&b.SlotEndTime,
		&b.Duration,
		&b.PatientName,
		&b.PatientPhone,
		&b.Notes,
		&userID,
		&b.BookerName,
		&bookerUserID,
		&b.IsAnonymous,
		&b.Status,
		&b.BookedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.UserID = userID
	b.BookerUserID = bookerUserID
	return &b, nil
}

const scanTypeCols = `id, name, duration, created_by, created_at, updated_at`

const scanCols = `id, scan_type, date, start_time, end_time, duration, total_slots, booked_slots, notes, created_by, created_at, updated_at`

const bookingCols = `id, scan_id, scan_type, scan_date, slot_number, slot_start_time, slot_end_time, duration, patient_name, patient_phone, notes, user_id, booker_name, booker_user_id, is_anonymous, status, booked_at, updated_at`

// uniqueViolation reports whether err is a 23505 on the named constraint.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// Scan type catalog

func (r *PgRepository) CreateScanType(ctx context.Context, st *ScanType) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO scan_types (id, name, duration, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING `+scanTypeCols+`
	`, st.ID, st.Name, st.Duration, st.CreatedBy)

	created, err := scanTypeRow(row)
	if err != nil {
		if uniqueViolation(err, "scan_types_name_lower_uniq") {
			return ErrDuplicateScanType
		}
		return err
	}

	*st = *created
	return nil
}

func (r *PgRepository) UpdateScanType(ctx context.Context, st *ScanType) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE scan_types
		SET name = $2,
		    duration = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+scanTypeCols+`
	`, st.ID, st.Name, st.Duration)

	updated, err := scanTypeRow(row)
	if err != nil {
		if uniqueViolation(err, "scan_types_name_lower_uniq") {
			return ErrDuplicateScanType
		}
		return err
	}

	*st = *updated
	return nil
}

func (r *PgRepository) DeleteScanType(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM scan_types WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScanTypeNotFound
	}
	return nil
}

func (r *PgRepository) GetScanTypeByID(ctx context.Context, id uuid.UUID) (*ScanType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scanTypeCols+`
		FROM scan_types
		WHERE id = $1
	`, id)
	return scanTypeRow(row)
}

func (r *PgRepository) GetScanTypeByName(ctx context.Context, name string) (*ScanType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scanTypeCols+`
		FROM scan_types
		WHERE lower(name) = lower($1)
	`, name)
	return scanTypeRow(row)
}

func (r *PgRepository) ListScanTypes(ctx context.Context) ([]ScanType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scanTypeCols+`
		FROM scan_types
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScanType
	for rows.Next() {
		st, err := scanTypeRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}

	return result, rows.Err()
}

func (r *PgRepository) CountScansForType(ctx context.Context, typeName string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM scans WHERE scan_type = $1
	`, typeName).Scan(&n)
	return n, err
}

// Scan blocks

func (r *PgRepository) CreateScan(ctx context.Context, s *Scan) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO scans (id, scan_type, date, start_time, end_time, duration, total_slots, booked_slots, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, now(), now())
		RETURNING `+scanCols+`
	`, s.ID, s.ScanType, s.Date, s.StartTime, s.EndTime, s.Duration, s.TotalSlots, s.Notes, s.CreatedBy)

	created, err := scanRow(row)
	if err != nil {
		if uniqueViolation(err, "scans_type_date_start_uniq") {
			return ErrDuplicateScan
		}
		return err
	}

	*s = *created
	return nil
}

func (r *PgRepository) UpdateScan(ctx context.Context, s *Scan) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE scans
		SET scan_type = $2,
		    date = $3,
		    start_time = $4,
		    end_time = $5,
		    duration = $6,
		    total_slots = $7,
		    notes = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+scanCols+`
	`, s.ID, s.ScanType, s.Date, s.StartTime, s.EndTime, s.Duration, s.TotalSlots, s.Notes)

	updated, err := scanRow(row)
	if err != nil {
		if uniqueViolation(err, "scans_type_date_start_uniq") {
			return ErrDuplicateScan
		}
		return err
	}

	*s = *updated
	return nil
}

func (r *PgRepository) DeleteScan(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScanNotFound
	}
	return nil
}

func (r *PgRepository) GetScanByID(ctx context.Context, id uuid.UUID) (*Scan, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scanCols+`
		FROM scans
		WHERE id = $1
	`, id)
	return scanRow(row)
}

func (r *PgRepository) ListScans(ctx context.Context, f ScanFilter) ([]Scan, error) {
	var (
		conds []string
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Date != nil {
		conds = append(conds, "date = "+arg(*f.Date))
	}
	if f.From != nil {
		conds = append(conds, "date >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "date <= "+arg(*f.To))
	}
	if f.ScanType != "" {
		conds = append(conds, "scan_type = "+arg(f.ScanType))
	}
	if f.OnlyAvailable {
		conds = append(conds, "booked_slots < total_slots")
	}

	query := `SELECT ` + scanCols + ` FROM scans`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date, start_time"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

// Booking ledger

// InsertBooking commits the booking and re-derives the parent scan's
// booked_slots from the ledger in one transaction. The partial unique
// index on (scan_id, slot_number) is what actually prevents a
// double-booking; a violation surfaces as ErrSlotTaken.
func (r *PgRepository) InsertBooking(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO bookings (id, scan_id, scan_type, scan_date, slot_number, slot_start_time, slot_end_time, duration, patient_name, patient_phone, notes, user_id, booker_name, booker_user_id, is_anonymous, status, booked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 'confirmed', now(), now())
		RETURNING `+bookingCols+`
	`, b.ID, b.ScanID, b.ScanType, b.ScanDate, b.SlotNumber, b.SlotStartTime, b.SlotEndTime,
		b.Duration, b.PatientName, b.PatientPhone, b.Notes, b.UserID, b.BookerName, b.BookerUserID, b.IsAnonymous)

	created, err := bookingRow(row)
	if err != nil {
		if uniqueViolation(err, "bookings_scan_slot_confirmed_uniq") {
			return ErrSlotTaken
		}
		return err
	}

	if err := recountBookedSlots(ctx, tx, created.ScanID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if uniqueViolation(err, "bookings_scan_slot_confirmed_uniq") {
			return ErrSlotTaken
		}
		return fmt.Errorf("commit booking tx: %w", err)
	}

	*b = *created
	return nil
}

// recountBookedSlots re-derives the counter from confirmed bookings
// rather than incrementing it, so it self-corrects under concurrent
// commits.
func recountBookedSlots(ctx context.Context, tx pgx.Tx, scanID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE scans
		SET booked_slots = (
			SELECT count(*) FROM bookings
			WHERE scan_id = $1 AND status = 'confirmed'
		),
		    updated_at = now()
		WHERE id = $1
	`, scanID)
	if err != nil {
		return fmt.Errorf("recount booked slots: %w", err)
	}
	return nil
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingCols+`
		FROM bookings
		WHERE id = $1
	`, id)
	return bookingRow(row)
}

func (r *PgRepository) GetConfirmedBooking(ctx context.Context, scanID uuid.UUID, slotNumber int) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingCols+`
		FROM bookings
		WHERE scan_id = $1 AND slot_number = $2 AND status = 'confirmed'
	`, scanID, slotNumber)
	return bookingRow(row)
}

func (r *PgRepository) GetConfirmedBookingForUser(ctx context.Context, scanID uuid.UUID, userID string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingCols+`
		FROM bookings
		WHERE scan_id = $1 AND user_id = $2 AND status = 'confirmed'
		LIMIT 1
	`, scanID, userID)
	return bookingRow(row)
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingCols+`
	`, id, to, from)

	updated, err := bookingRow(row)
	if err != nil {
		return nil, err
	}

	if err := recountBookedSlots(ctx, tx, updated.ScanID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status tx: %w", err)
	}

	return updated, nil
}

func (r *PgRepository) ListBookingsForScan(ctx context.Context, scanID uuid.UUID) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingCols+`
		FROM bookings
		WHERE scan_id = $1 AND status = 'confirmed'
		ORDER BY slot_number
	`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBookings(rows)
}

func (r *PgRepository) ListBookingsForScans(ctx context.Context, scanIDs []uuid.UUID) (map[uuid.UUID][]Booking, error) {
	result := make(map[uuid.UUID][]Booking)
	if len(scanIDs) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingCols+`
		FROM bookings
		WHERE scan_id = ANY($1) AND status = 'confirmed'
		ORDER BY slot_number
	`, scanIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}

	for _, b := range bookings {
		result[b.ScanID] = append(result[b.ScanID], b)
	}
	return result, nil
}

func (r *PgRepository) ListBookingsForUser(ctx context.Context, userID string) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingCols+`
		FROM bookings
		WHERE user_id = $1 AND status = 'confirmed'
		ORDER BY booked_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBookings(rows)
}

func (r *PgRepository) ListBookingsBetween(ctx context.Context, from, to time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingCols+`
		FROM bookings
		WHERE scan_date BETWEEN $1 AND $2 AND status = 'confirmed'
		ORDER BY scan_date, slot_start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBookings(rows)
}

func (r *PgRepository) CountConfirmedBookings(ctx context.Context, scanID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM bookings
		WHERE scan_id = $1 AND status = 'confirmed'
	`, scanID).Scan(&n)
	return n, err
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	var result []Booking
	for rows.Next() {
		b, err := bookingRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}
