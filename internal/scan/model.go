package scan

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// ScanType is catalog reference data: a named scan category with its
// standard duration in minutes.
type ScanType struct {
	ID        uuid.UUID
	Name      string
	Duration  int
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scan is an admin-defined schedule block: one scan type on one date,
// carved into TotalSlots equal windows of Duration minutes starting at
// StartTime. Times are HH:MM 24-hour clock strings, Date is a UTC
// calendar date.
type Scan struct {
	ID          uuid.UUID
	ScanType    string
	Date        time.Time
	StartTime   string
	EndTime     string
	Duration    int
	TotalSlots  int
	BookedSlots int
	Notes       string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AvailableSlots is always derived, never stored.
func (s *Scan) AvailableSlots() int {
	n := s.TotalSlots - s.BookedSlots
	if n < 0 {
		return 0
	}
	return n
}

// Slot is one bookable window within a Scan. Slots are recomputed from
// the parent Scan on every request and never persisted.
type Slot struct {
	Number    int
	StartTime string
	EndTime   string
}

// Booking is a confirmed reservation of one slot. Scan type, date and
// duration are denormalized so history survives later scan edits.
type Booking struct {
	ID            uuid.UUID
	ScanID        uuid.UUID
	ScanType      string
	ScanDate      time.Time
	SlotNumber    int
	SlotStartTime string
	SlotEndTime   string
	Duration      int
	PatientName   string
	PatientPhone  string
	Notes         string
	UserID        *string // Keycloak subject; nil for anonymous bookings
	BookerName    string
	BookerUserID  *string
	IsAnonymous   bool
	Status        BookingStatus
	BookedAt      time.Time
	UpdatedAt     time.Time
}

// ScanWithBookings is the admin weekly-view row: the scan, its live
// counts, and the confirmed bookings against it.
type ScanWithBookings struct {
	Scan
	Bookings []Booking
}

// WeeklySchedule groups a Monday-start week of scans by weekday name.
type WeeklySchedule struct {
	WeekStart time.Time
	WeekEnd   time.Time
	Days      map[string][]ScanWithBookings
}

// AvailableDay summarises open capacity for one calendar date of one
// scan type.
type AvailableDay struct {
	Date           time.Time
	TotalAvailable int
	Scans          []Scan
}

// ScanFilter narrows ListScans.
type ScanFilter struct {
	Date          *time.Time
	From          *time.Time
	To            *time.Time
	ScanType      string
	OnlyAvailable bool
}
