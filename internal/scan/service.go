package scan

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/carescan/scanbook/internal/redis"
)

var (
	ErrAlreadyBooked           = errors.New("you already have a booking for this scan")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid booking status transition")
	ErrNotBookingOwner         = errors.New("booking belongs to another user")
)

// ValidationError carries the user-facing message for a rejected request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ScanHasBookingsError blocks deletion of a scan that still has
// confirmed bookings.
type ScanHasBookingsError struct {
	Count int
}

func (e *ScanHasBookingsError) Error() string {
	return fmt.Sprintf("cannot delete scan with %d booking(s), cancel all bookings first", e.Count)
}

// ScanTypeInUseError blocks deletion of a scan type still referenced by
// scans; the message names the referencing count.
type ScanTypeInUseError struct {
	Name  string
	Count int
}

func (e *ScanTypeInUseError) Error() string {
	return fmt.Sprintf("cannot delete scan type %q, it is currently used in %d scan(s)", e.Name, e.Count)
}

var phoneRe = regexp.MustCompile(`^[0-9\s\-\+\(\)]{10,}$`)

func validPhone(p string) bool {
	return phoneRe.MatchString(strings.ReplaceAll(p, " ", ""))
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		log:    log,
	}
}

func todayUTC() time.Time {
	n := time.Now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mondayOf returns the Monday-start of the week containing t, in UTC.
func mondayOf(t time.Time) time.Time {
	t = dateOnly(t)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Scan block admin operations

type ScanParams struct {
	ScanType   string
	Date       time.Time
	StartTime  string
	EndTime    string
	Duration   int
	TotalSlots int
	Notes      string
}

func (s *Service) validateScanParams(ctx context.Context, p ScanParams) error {
	if p.ScanType == "" || p.Date.IsZero() || p.StartTime == "" || p.EndTime == "" || p.Duration == 0 || p.TotalSlots == 0 {
		return invalidf("scan type, date, start time, end time, duration, and total slots are required")
	}

	if _, err := s.repo.GetScanTypeByName(ctx, p.ScanType); err != nil {
		if errors.Is(err, ErrScanTypeNotFound) {
			return invalidf("invalid scan type, please select a valid scan type from the system")
		}
		return fmt.Errorf("load scan type: %w", err)
	}

	if p.TotalSlots < 1 || p.TotalSlots > 50 {
		return invalidf("total slots must be between 1 and 50")
	}
	if p.Duration < 1 {
		return invalidf("duration must be a positive number of minutes")
	}

	if dateOnly(p.Date).Before(todayUTC()) {
		return invalidf("cannot schedule scans for past dates")
	}

	start, err := ParseClock(p.StartTime)
	if err != nil {
		return invalidf("invalid time format, use HH:MM")
	}
	end, err := ParseClock(p.EndTime)
	if err != nil {
		return invalidf("invalid time format, use HH:MM")
	}
	if start >= end {
		return invalidf("start time must be before end time")
	}

	if start+p.TotalSlots*p.Duration > minutesPerDay {
		return invalidf("slots must not extend past midnight")
	}

	return nil
}

func (s *Service) CreateScan(ctx context.Context, p ScanParams, createdBy string) (*Scan, error) {
	if err := s.validateScanParams(ctx, p); err != nil {
		return nil, err
	}

	sc := &Scan{
		ScanType:   p.ScanType,
		Date:       dateOnly(p.Date),
		StartTime:  p.StartTime,
		EndTime:    p.EndTime,
		Duration:   p.Duration,
		TotalSlots: p.TotalSlots,
		Notes:      p.Notes,
		CreatedBy:  createdBy,
	}

	if err := s.repo.CreateScan(ctx, sc); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("scan_id", sc.ID.String()).
		Str("scan_type", sc.ScanType).
		Str("date", sc.Date.Format("2006-01-02")).
		Str("start_time", sc.StartTime).
		Int("total_slots", sc.TotalSlots).
		Msg("scan created")

	return sc, nil
}

func (s *Service) UpdateScan(ctx context.Context, id uuid.UUID, p ScanParams) (*Scan, error) {
	sc, err := s.repo.GetScanByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.validateScanParams(ctx, p); err != nil {
		return nil, err
	}

	confirmed, err := s.repo.CountConfirmedBookings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	if p.TotalSlots < confirmed {
		return nil, invalidf("total slots cannot be less than the %d confirmed booking(s)", confirmed)
	}

	sc.ScanType = p.ScanType
	sc.Date = dateOnly(p.Date)
	sc.StartTime = p.StartTime
	sc.EndTime = p.EndTime
	sc.Duration = p.Duration
	sc.TotalSlots = p.TotalSlots
	sc.Notes = p.Notes

	if err := s.repo.UpdateScan(ctx, sc); err != nil {
		return nil, err
	}

	return sc, nil
}

func (s *Service) DeleteScan(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetScanByID(ctx, id); err != nil {
		return err
	}

	// Recount from the ledger rather than trusting the stored counter.
	confirmed, err := s.repo.CountConfirmedBookings(ctx, id)
	if err != nil {
		return fmt.Errorf("count bookings: %w", err)
	}
	if confirmed > 0 {
		return &ScanHasBookingsError{Count: confirmed}
	}

	return s.repo.DeleteScan(ctx, id)
}

// GetScan returns the scan with booked_slots re-derived from confirmed
// bookings.
func (s *Service) GetScan(ctx context.Context, id uuid.UUID) (*Scan, error) {
	sc, err := s.repo.GetScanByID(ctx, id)
	if err != nil {
		return nil, err
	}

	confirmed, err := s.repo.CountConfirmedBookings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	sc.BookedSlots = confirmed

	return sc, nil
}

func (s *Service) ListScans(ctx context.Context, f ScanFilter) ([]Scan, error) {
	if f.Date != nil {
		d := dateOnly(*f.Date)
		f.Date = &d
	}
	return s.repo.ListScans(ctx, f)
}

func (s *Service) ScansByDate(ctx context.Context, date time.Time) ([]Scan, error) {
	d := dateOnly(date)
	return s.repo.ListScans(ctx, ScanFilter{Date: &d})
}

// WeeklySchedule returns the Monday-start week containing date, scans
// grouped by weekday name with counts re-derived from the ledger.
// Booking details are attached only when includeBookings is set (the
// admin view); the public view carries counts alone.
func (s *Service) WeeklySchedule(ctx context.Context, date time.Time, includeBookings bool) (*WeeklySchedule, error) {
	weekStart := mondayOf(date)
	weekEnd := weekStart.AddDate(0, 0, 6)

	scans, err := s.repo.ListScans(ctx, ScanFilter{From: &weekStart, To: &weekEnd})
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(scans))
	for _, sc := range scans {
		ids = append(ids, sc.ID)
	}

	byScan, err := s.repo.ListBookingsForScans(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	days := make(map[string][]ScanWithBookings, len(dayNames))
	for _, d := range dayNames {
		days[d] = []ScanWithBookings{}
	}

	for _, sc := range scans {
		bookings := byScan[sc.ID]
		sc.BookedSlots = len(bookings)

		entry := ScanWithBookings{Scan: sc}
		if includeBookings {
			entry.Bookings = bookings
		}

		day := dayNames[(int(sc.Date.Weekday())+6)%7]
		days[day] = append(days[day], entry)
	}

	return &WeeklySchedule{
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
		Days:      days,
	}, nil
}

// AvailableDates lists, for the coming three months, the dates on which
// the given scan type still has open slots.
func (s *Service) AvailableDates(ctx context.Context, scanType string, from time.Time) ([]AvailableDay, error) {
	if from.IsZero() {
		from = todayUTC()
	} else {
		from = dateOnly(from)
	}
	to := from.AddDate(0, 3, 0)

	scans, err := s.repo.ListScans(ctx, ScanFilter{ScanType: scanType, From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(scans))
	for _, sc := range scans {
		ids = append(ids, sc.ID)
	}
	byScan, err := s.repo.ListBookingsForScans(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	var result []AvailableDay
	idx := make(map[time.Time]int)

	for _, sc := range scans {
		sc.BookedSlots = len(byScan[sc.ID])
		avail := sc.AvailableSlots()
		if avail == 0 {
			continue
		}

		i, ok := idx[sc.Date]
		if !ok {
			i = len(result)
			idx[sc.Date] = i
			result = append(result, AvailableDay{Date: sc.Date})
		}
		result[i].TotalAvailable += avail
		result[i].Scans = append(result[i].Scans, sc)
	}

	return result, nil
}

// Booking

type BookParams struct {
	ScanID       uuid.UUID
	SlotNumber   int
	PatientName  string
	PatientPhone string
	Notes        string
	BookerName   string
	BookerUserID *string
	UserID       *string // resolved authenticated identity, nil for anonymous
	UserName     string  // display name of the authenticated identity
}

// Book validates the request and commits the reservation. The Redis
// slot lock serialises concurrent requests for the same slot so they
// get a clean conflict answer; the partial unique index enforced in
// InsertBooking is the actual no-double-booking guarantee.
func (s *Service) Book(ctx context.Context, p BookParams) (*Booking, error) {
	sc, err := s.repo.GetScanByID(ctx, p.ScanID)
	if err != nil {
		return nil, err
	}

	if dateOnly(sc.Date).Before(todayUTC()) {
		return nil, invalidf("cannot book appointments for past dates")
	}

	if strings.TrimSpace(p.PatientName) == "" {
		return nil, invalidf("patient name is required")
	}
	if !validPhone(p.PatientPhone) {
		return nil, invalidf("please provide a valid phone number")
	}

	// Slot windows are derived server-side; client-supplied slot times
	// are never trusted.
	window, ok := SlotWindow(sc, p.SlotNumber)
	if !ok {
		return nil, invalidf("slot number must be between 1 and %d", sc.TotalSlots)
	}

	bookerName := strings.TrimSpace(p.BookerName)
	if bookerName == "" {
		bookerName = p.UserName
	}
	if bookerName == "" {
		bookerName = "Anonymous User"
	}
	bookerUserID := p.BookerUserID
	if bookerUserID == nil {
		bookerUserID = p.UserID
	}

	var created *Booking

	err = s.locker.WithSlotLock(ctx, p.ScanID, p.SlotNumber, func(lockCtx context.Context) error {
		// Fast-path check inside the critical section; the unique index
		// still backs it up.
		existing, err := s.repo.GetConfirmedBooking(lockCtx, p.ScanID, p.SlotNumber)
		if err != nil && !errors.Is(err, ErrBookingNotFound) {
			return fmt.Errorf("check slot booking: %w", err)
		}
		if existing != nil {
			return ErrSlotTaken
		}

		if p.UserID != nil {
			dup, err := s.repo.GetConfirmedBookingForUser(lockCtx, p.ScanID, *p.UserID)
			if err != nil && !errors.Is(err, ErrBookingNotFound) {
				return fmt.Errorf("check user booking: %w", err)
			}
			if dup != nil {
				return ErrAlreadyBooked
			}
		}

		b := &Booking{
			ScanID:        sc.ID,
			ScanType:      sc.ScanType,
			ScanDate:      sc.Date,
			SlotNumber:    p.SlotNumber,
			SlotStartTime: window.StartTime,
			SlotEndTime:   window.EndTime,
			Duration:      sc.Duration,
			PatientName:   strings.TrimSpace(p.PatientName),
			PatientPhone:  strings.TrimSpace(p.PatientPhone),
			Notes:         strings.TrimSpace(p.Notes),
			UserID:        p.UserID,
			BookerName:    bookerName,
			BookerUserID:  bookerUserID,
			IsAnonymous:   p.UserID == nil,
			Status:        StatusConfirmed,
		}

		if err := s.repo.InsertBooking(lockCtx, b); err != nil {
			return err
		}

		created = b
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.log.Info().
		Str("booking_id", created.ID.String()).
		Str("scan_id", sc.ID.String()).
		Int("slot_number", created.SlotNumber).
		Bool("anonymous", created.IsAnonymous).
		Msg("slot booked")

	return created, nil
}

// CancelBooking moves a confirmed booking to cancelled, freeing its
// slot number for rebooking. Admins may cancel any booking;
// authenticated bookers only their own.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, requester *string, admin bool) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !admin {
		if requester == nil || b.UserID == nil || *b.UserID != *requester {
			return nil, ErrNotBookingOwner
		}
	}

	if b.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, id, StatusConfirmed, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// Lost a race with a concurrent transition.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	s.log.Info().
		Str("booking_id", updated.ID.String()).
		Str("scan_id", updated.ScanID.String()).
		Int("slot_number", updated.SlotNumber).
		Msg("booking cancelled")

	return updated, nil
}

// CompleteBooking moves a confirmed booking to completed.
func (s *Service) CompleteBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, id, StatusConfirmed, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("complete booking: %w", err)
	}

	return updated, nil
}

func (s *Service) BookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetBookingByID(ctx, id)
}

func (s *Service) BookingsForScan(ctx context.Context, scanID uuid.UUID) ([]Booking, error) {
	if _, err := s.repo.GetScanByID(ctx, scanID); err != nil {
		return nil, err
	}
	return s.repo.ListBookingsForScan(ctx, scanID)
}

func (s *Service) BookingsForUser(ctx context.Context, userID string) ([]Booking, error) {
	return s.repo.ListBookingsForUser(ctx, userID)
}

// WeeklyBookings returns all confirmed bookings for the Monday-start
// week containing date.
func (s *Service) WeeklyBookings(ctx context.Context, date time.Time) (weekStart, weekEnd time.Time, bookings []Booking, err error) {
	weekStart = mondayOf(date)
	weekEnd = weekStart.AddDate(0, 0, 6)

	bookings, err = s.repo.ListBookingsBetween(ctx, weekStart, weekEnd)
	return weekStart, weekEnd, bookings, err
}

// Scan type catalog operations

func (s *Service) CreateScanType(ctx context.Context, name string, duration int, createdBy string) (*ScanType, error) {
	name = strings.TrimSpace(name)
	if name == "" || duration == 0 {
		return nil, invalidf("name and duration are required")
	}
	if duration < 5 || duration > 300 {
		return nil, invalidf("duration must be between 5 and 300 minutes")
	}

	if _, err := s.repo.GetScanTypeByName(ctx, name); err == nil {
		return nil, ErrDuplicateScanType
	} else if !errors.Is(err, ErrScanTypeNotFound) {
		return nil, fmt.Errorf("check scan type name: %w", err)
	}

	st := &ScanType{
		Name:      name,
		Duration:  duration,
		CreatedBy: createdBy,
	}
	if err := s.repo.CreateScanType(ctx, st); err != nil {
		return nil, err
	}

	return st, nil
}

func (s *Service) UpdateScanType(ctx context.Context, id uuid.UUID, name string, duration int) (*ScanType, error) {
	name = strings.TrimSpace(name)
	if name == "" || duration == 0 {
		return nil, invalidf("name and duration are required")
	}
	if duration < 5 || duration > 300 {
		return nil, invalidf("duration must be between 5 and 300 minutes")
	}

	st, err := s.repo.GetScanTypeByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if other, err := s.repo.GetScanTypeByName(ctx, name); err == nil {
		if other.ID != id {
			return nil, ErrDuplicateScanType
		}
	} else if !errors.Is(err, ErrScanTypeNotFound) {
		return nil, fmt.Errorf("check scan type name: %w", err)
	}

	st.Name = name
	st.Duration = duration
	if err := s.repo.UpdateScanType(ctx, st); err != nil {
		return nil, err
	}

	return st, nil
}

func (s *Service) DeleteScanType(ctx context.Context, id uuid.UUID) error {
	st, err := s.repo.GetScanTypeByID(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.repo.CountScansForType(ctx, st.Name)
	if err != nil {
		return fmt.Errorf("count scans for type: %w", err)
	}
	if count > 0 {
		return &ScanTypeInUseError{Name: st.Name, Count: count}
	}

	return s.repo.DeleteScanType(ctx, id)
}

func (s *Service) ListScanTypes(ctx context.Context) ([]ScanType, error) {
	return s.repo.ListScanTypes(ctx)
}

func (s *Service) ScanTypeNames(ctx context.Context) ([]string, error) {
	types, err := s.repo.ListScanTypes(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(types))
	for _, st := range types {
		names = append(names, st.Name)
	}
	return names, nil
}
