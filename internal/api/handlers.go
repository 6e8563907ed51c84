package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carescan/scanbook/internal/auth"
	"github.com/carescan/scanbook/internal/scan"
)

func parseDateParam(r *http.Request, name string) (time.Time, bool) {
	d, err := time.ParseInLocation(dateLayout, chi.URLParam(r, name), time.UTC)
	return d, err == nil
}

func parseIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func creatorID(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.Subject
	}
	return ""
}

func createScanHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse request body")
			return
		}

		date, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
			return
		}

		created, err := svc.CreateScan(r.Context(), scan.ScanParams{
			ScanType:   req.ScanType,
			Date:       date,
			StartTime:  req.StartTime,
			EndTime:    req.EndTime,
			Duration:   req.Duration,
			TotalSlots: req.TotalSlots,
			Notes:      req.Notes,
		}, creatorID(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, DataResponse{Success: true, Data: toScanResponse(created)})
	}
}

func updateScanHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "id must be a valid UUID")
			return
		}

		var req CreateScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse request body")
			return
		}

		date, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
			return
		}

		updated, err := svc.UpdateScan(r.Context(), id, scan.ScanParams{
			ScanType:   req.ScanType,
			Date:       date,
			StartTime:  req.StartTime,
			EndTime:    req.EndTime,
			Duration:   req.Duration,
			TotalSlots: req.TotalSlots,
			Notes:      req.Notes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: toScanResponse(updated)})
	}
}

func deleteScanHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "id must be a valid UUID")
			return
		}

		if err := svc.DeleteScan(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "scan deleted successfully"})
	}
}

func getScanHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "id must be a valid UUID")
			return
		}

		sc, err := svc.GetScan(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		bookings, err := svc.BookingsForScan(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		booked := make(map[int]bool, len(bookings))
		for _, b := range bookings {
			booked[b.SlotNumber] = true
		}

		resp := toScanResponse(sc)
		for _, slot := range scan.DeriveSlots(sc) {
			resp.Slots = append(resp.Slots, SlotResponse{
				SlotNumber: slot.Number,
				StartTime:  slot.StartTime,
				EndTime:    slot.EndTime,
				Booked:     booked[slot.Number],
			})
		}

		writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: resp})
	}
}

func listScansHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f scan.ScanFilter

		q := r.URL.Query()
		if v := q.Get("date"); v != "" {
			d, err := time.ParseInLocation(dateLayout, v, time.UTC)
			if err != nil {
				writeError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
				return
			}
			f.Date = &d
		}
		if v := q.Get("week"); v != "" {
			from, err := time.ParseInLocation(dateLayout, v, time.UTC)
			if err != nil {
				writeError(w, http.StatusBadRequest, "week must be in YYYY-MM-DD format")
				return
			}
			to := from.AddDate(0, 0, 6)
			f.From = &from
			f.To = &to
		}
		f.ScanType = q.Get("scanType")
		f.OnlyAvailable = q.Get("available") == "true"

		scans, err := svc.ListScans(r.Context(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		data := make([]ScanResponse, 0, len(scans))
		for i := range scans {
			data = append(data, toScanResponse(&scans[i]))
		}
		count := len(data)
		writeJSON(w, http.StatusOK, DataResponse{Success: true, Count: &count, Data: data})
	}
}

func scansByDateHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := parseDateParam(r, "date")
		if !ok {
			writeError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
			return
		}

		scans, err := svc.ScansByDate(r.Context(), date)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		data := make([]ScanResponse, 0, len(scans))
		for i := range scans {
			data = append(data, toScanResponse(&scans[i]))
		}
		count := len(data)
		writeJSON(w, http.StatusOK, DataResponse{Success: true, Count: &count, Data: data})
	}
}

// weeklyScheduleHandler serves the public weekly view. Booking details
// are attached only when the caller holds the admin role.
func weeklyScheduleHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := parseDateParam(r, "date")
		if !ok {
			writeError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
			return
		}

		id := auth.FromContext(r.Context())
		isAdmin := id != nil && id.IsAdmin()

		week, err := svc.WeeklySchedule(r.Context(), date, isAdmin)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		data := make(map[string][]ScanWithBookingsResponse, len(week.Days))
		for day, entries := range week.Days {
			rows := make([]ScanWithBookingsResponse, 0, len(entries))
			for i := range entries {
				row := ScanWithBookingsResponse{ScanResponse: toScanResponse(&entries[i].Scan)}
				if isAdmin {
					row.BookingDetails = toBookingResponses(entries[i].Bookings)
				}
				rows = append(rows, row)
			}
			data[day] = rows
		}

		writeJSON(w, http.StatusOK, WeeklyScheduleResponse{
			Success:   true,
			WeekStart: week.WeekStart.Format(dateLayout),
			WeekEnd:   week.WeekEnd.Format(dateLayout),
			Data:      data,
		})
	}
}

func availableDatesHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scanType := chi.URLParam(r, "scanType")

		var from time.Time
		if v := r.URL.Query().Get("fromDate"); v != "" {
			d, err := time.ParseInLocation(dateLayout, v, time.UTC)
			if err != nil {
				writeError(w, http.StatusBadRequest, "fromDate must be in YYYY-MM-DD format")
				return
			}
			from = d
		}

		days, err := svc.AvailableDates(r.Context(), scanType, from)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		data := make([]AvailableDayResponse, 0, len(days))
		var rangeStart time.Time
		if from.IsZero() {
			rangeStart = time.Now().UTC()
		} else {
			rangeStart = from
		}
		for _, day := range days {
			scans := make([]ScanResponse, 0, len(day.Scans))
			for i := range day.Scans {
				scans = append(scans, toScanResponse(&day.Scans[i]))
			}
			data = append(data, AvailableDayResponse{
				Date:                day.Date.Format(dateLayout),
				DayName:             day.Date.Weekday().String(),
				TotalAvailableSlots: day.TotalAvailable,
				Scans:               scans,
			})
		}

		writeJSON(w, http.StatusOK, AvailableDatesResponse{
			Success:  true,
			ScanType: scanType,
			FromDate: rangeStart.Format(dateLayout),
			ToDate:   rangeStart.AddDate(0, 3, 0).Format(dateLayout),
			Data:     data,
		})
	}
}
