package api

import (
	"encoding/json"
	"net/http"

	"github.com/carescan/scanbook/internal/auth"
	"github.com/carescan/scanbook/internal/scan"
)

func bookScanHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scanID, ok := parseIDParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "id must be a valid UUID")
			return
		}

		var req BookScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse request body")
			return
		}

		p := scan.BookParams{
			ScanID:       scanID,
			SlotNumber:   req.SlotNumber,
			PatientName:  req.PatientName,
			PatientPhone: req.PatientPhone,
			Notes:        req.Notes,
			BookerName:   req.BookerName,
			BookerUserID: req.BookerUserID,
		}

		// Anonymous bookings are allowed; an identity, when present,
		// enables the one-booking-per-scan check.
		if id := auth.FromContext(r.Context()); id != nil {
			p.UserID = &id.Subject
			p.UserName = id.Name
		}

		booking, err := svc.Book(r.Context(), p)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Success bool            `json:"success"`
			Message string          `json:"message"`
			Data    BookingResponse `json:"data"`
		}{
			Success: true,
			Message: "appointment booked successfully",
			Data:    toBookingResponse(booking),
		})
	}
}

func myBookingsHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := auth.FromContext(r.Context())
		if id == nil {
			writeError(w, http.StatusUnauthorized, "not authorized to access this route")
			return
		}

		bookings, err := svc.BookingsForUser(r.Context(), id.Subject)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		data := toBookingResponses(bookings)
		count := len(data)
		writeJSON(w, http.StatusOK, DataResponse{Success: true, Count: &count, Data: data})
	}
}

func scanBookingsHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scanID, ok := parseIDParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "id must be a valid UUID")
			return
		}

		bookings, err := svc.BookingsForScan(r.Context(), scanID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		data := toBookingResponses(bookings)
		count := len(data)
		writeJSON(w, http.StatusOK, DataResponse{Success: true, Count: &count, Data: data})
	}
}

func bookingDetailsHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "id must be a valid UUID")
			return
		}

		booking, err := svc.BookingByID(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: toBookingResponse(booking)})
	}
}

func weeklyBookingsHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := parseDateParam(r, "date")
		if !ok {
			writeError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
			return
		}

		weekStart, weekEnd, bookings, err := svc.WeeklyBookings(r.Context(), date)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		data := toBookingResponses(bookings)
		writeJSON(w, http.StatusOK, WeeklyBookingsResponse{
			Success:   true,
			WeekStart: weekStart.Format(dateLayout),
			WeekEnd:   weekEnd.Format(dateLayout),
			Count:     len(data),
			Data:      data,
		})
	}
}

func cancelBookingHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := parseIDParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "id must be a valid UUID")
			return
		}

		id := auth.FromContext(r.Context())
		if id == nil {
			writeError(w, http.StatusUnauthorized, "not authorized to access this route")
			return
		}

		booking, err := svc.CancelBooking(r.Context(), bookingID, &id.Subject, id.IsAdmin())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: toBookingResponse(booking)})
	}
}

func completeBookingHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := parseIDParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "id must be a valid UUID")
			return
		}

		booking, err := svc.CompleteBooking(r.Context(), bookingID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: toBookingResponse(booking)})
	}
}
