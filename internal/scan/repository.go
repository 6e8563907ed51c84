package scan

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrScanNotFound      = errors.New("scan not found")
	ErrScanTypeNotFound  = errors.New("scan type not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrSlotTaken         = errors.New("this time slot is already booked")
	ErrDuplicateScan     = errors.New("a scan for this type already exists at this date and time")
	ErrDuplicateScanType = errors.New("a scan type with this name already exists")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// Scan type catalog
	CreateScanType(ctx context.Context, st *ScanType) error
	UpdateScanType(ctx context.Context, st *ScanType) error
	DeleteScanType(ctx context.Context, id uuid.UUID) error
	GetScanTypeByID(ctx context.Context, id uuid.UUID) (*ScanType, error)
	// GetScanTypeByName matches case-insensitively.
	GetScanTypeByName(ctx context.Context, name string) (*ScanType, error)
	ListScanTypes(ctx context.Context) ([]ScanType, error)
	CountScansForType(ctx context.Context, typeName string) (int, error)

	// Scan blocks
	CreateScan(ctx context.Context, s *Scan) error
	UpdateScan(ctx context.Context, s *Scan) error
	DeleteScan(ctx context.Context, id uuid.UUID) error
	GetScanByID(ctx context.Context, id uuid.UUID) (*Scan, error)
	ListScans(ctx context.Context, f ScanFilter) ([]Scan, error)

	// Booking ledger. InsertBooking and UpdateBookingStatus also
	// recompute the parent scan's booked_slots from the ledger in the
	// same transaction.
	InsertBooking(ctx context.Context, b *Booking) error
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetConfirmedBooking(ctx context.Context, scanID uuid.UUID, slotNumber int) (*Booking, error)
	GetConfirmedBookingForUser(ctx context.Context, scanID uuid.UUID, userID string) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error)
	ListBookingsForScan(ctx context.Context, scanID uuid.UUID) ([]Booking, error)
	ListBookingsForScans(ctx context.Context, scanIDs []uuid.UUID) (map[uuid.UUID][]Booking, error)
	ListBookingsForUser(ctx context.Context, userID string) ([]Booking, error)
	ListBookingsBetween(ctx context.Context, from, to time.Time) ([]Booking, error)
	CountConfirmedBookings(ctx context.Context, scanID uuid.UUID) (int, error)
}
