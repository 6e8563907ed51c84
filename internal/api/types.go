package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carescan/scanbook/internal/scan"
)

const dateLayout = "2006-01-02"

// Requests

type CreateScanRequest struct {
	ScanType   string `json:"scanType"`
	Date       string `json:"date"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Duration   int    `json:"duration"`
	TotalSlots int    `json:"totalSlots"`
	Notes      string `json:"notes"`
}

type BookScanRequest struct {
	PatientName   string  `json:"patientName"`
	PatientPhone  string  `json:"patientPhone"`
	Notes         string  `json:"notes"`
	SlotNumber    int     `json:"slotNumber"`
	SlotStartTime string  `json:"slotStartTime"` // advisory; the server re-derives the window
	SlotEndTime   string  `json:"slotEndTime"`
	BookerName    string  `json:"bookerName"`
	BookerUserID  *string `json:"bookerUserId"`
}

type ScanTypeRequest struct {
	Name     string `json:"name"`
	Duration int    `json:"duration"`
}

// Responses

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type DataResponse struct {
	Success bool `json:"success"`
	Count   *int `json:"count,omitempty"`
	Data    any  `json:"data"`
}

type ScanTypeResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Duration  int       `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type SlotResponse struct {
	SlotNumber int    `json:"slotNumber"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Booked     bool   `json:"booked"`
}

type ScanResponse struct {
	ID             uuid.UUID      `json:"id"`
	ScanType       string         `json:"scanType"`
	Date           string         `json:"date"`
	StartTime      string         `json:"startTime"`
	EndTime        string         `json:"endTime"`
	Duration       int            `json:"duration"`
	TotalSlots     int            `json:"totalSlots"`
	BookedSlots    int            `json:"bookedSlots"`
	AvailableSlots int            `json:"availableSlots"`
	Notes          string         `json:"notes,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	Slots          []SlotResponse `json:"slots,omitempty"`
}

type BookingResponse struct {
	ID            uuid.UUID `json:"id"`
	ScanID        uuid.UUID `json:"scanId"`
	ScanType      string    `json:"scanType"`
	Date          string    `json:"date"`
	SlotNumber    int       `json:"slotNumber"`
	SlotStartTime string    `json:"slotStartTime"`
	SlotEndTime   string    `json:"slotEndTime"`
	Duration      int       `json:"duration"`
	PatientName   string    `json:"patientName"`
	PatientPhone  string    `json:"patientPhone"`
	Notes         string    `json:"notes,omitempty"`
	BookerName    string    `json:"bookerName,omitempty"`
	UserID        *string   `json:"userId"`
	IsAnonymous   bool      `json:"isAnonymous"`
	Status        string    `json:"status"`
	BookedAt      time.Time `json:"bookedAt"`
}

type ScanWithBookingsResponse struct {
	ScanResponse
	BookingDetails []BookingResponse `json:"bookingDetails,omitempty"`
}

type WeeklyScheduleResponse struct {
	Success   bool                                  `json:"success"`
	WeekStart string                                `json:"weekStart"`
	WeekEnd   string                                `json:"weekEnd"`
	Data      map[string][]ScanWithBookingsResponse `json:"data"`
}

type WeeklyBookingsResponse struct {
	Success   bool              `json:"success"`
	WeekStart string            `json:"weekStart"`
	WeekEnd   string            `json:"weekEnd"`
	Count     int               `json:"count"`
	Data      []BookingResponse `json:"data"`
}

type AvailableDayResponse struct {
	Date                string         `json:"date"`
	DayName             string         `json:"dayName"`
	TotalAvailableSlots int            `json:"totalAvailableSlots"`
	Scans               []ScanResponse `json:"scans"`
}

type AvailableDatesResponse struct {
	Success  bool                   `json:"success"`
	ScanType string                 `json:"scanType"`
	FromDate string                 `json:"fromDate"`
	ToDate   string                 `json:"toDate"`
	Data     []AvailableDayResponse `json:"data"`
}

// Mapping helpers

func toScanTypeResponse(st *scan.ScanType) ScanTypeResponse {
	return ScanTypeResponse{
		ID:        st.ID,
		Name:      st.Name,
		Duration:  st.Duration,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

func toScanResponse(s *scan.Scan) ScanResponse {
	return ScanResponse{
		ID:             s.ID,
		ScanType:       s.ScanType,
		Date:           s.Date.Format(dateLayout),
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		Duration:       s.Duration,
		TotalSlots:     s.TotalSlots,
		BookedSlots:    s.BookedSlots,
		AvailableSlots: s.AvailableSlots(),
		Notes:          s.Notes,
		CreatedAt:      s.CreatedAt,
	}
}

func toBookingResponse(b *scan.Booking) BookingResponse {
	return BookingResponse{
		ID:            b.ID,
		ScanID:        b.ScanID,
		ScanType:      b.ScanType,
		Date:          b.ScanDate.Format(dateLayout),
		SlotNumber:    b.SlotNumber,
		SlotStartTime: b.SlotStartTime,
		SlotEndTime:   b.SlotEndTime,
		Duration:      b.Duration,
		PatientName:   b.PatientName,
		PatientPhone:  b.PatientPhone,
		Notes:         b.Notes,
		BookerName:    b.BookerName,
		UserID:        b.UserID,
		IsAnonymous:   b.IsAnonymous,
		Status:        string(b.Status),
		BookedAt:      b.BookedAt,
	}
}

func toBookingResponses(bookings []scan.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResponse(&bookings[i]))
	}
	return out
}
