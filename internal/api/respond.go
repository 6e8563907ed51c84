package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carescan/scanbook/internal/scan"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Every response carries a success flag and, on failure, a
// human-readable message.

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message})
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
// Storage-level conflicts arrive here already translated to sentinel
// errors and are never leaked raw.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		ve       *scan.ValidationError
		typeUsed *scan.ScanTypeInUseError
		hasBkngs *scan.ScanHasBookingsError
	)

	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Message)
	case errors.Is(err, scan.ErrScanNotFound),
		errors.Is(err, scan.ErrScanTypeNotFound),
		errors.Is(err, scan.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scan.ErrNotBookingOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &typeUsed),
		errors.As(err, &hasBkngs),
		errors.Is(err, scan.ErrSlotTaken),
		errors.Is(err, scan.ErrDuplicateScan),
		errors.Is(err, scan.ErrDuplicateScanType),
		errors.Is(err, scan.ErrAlreadyBooked),
		errors.Is(err, scan.ErrSlotBeingBooked),
		errors.Is(err, scan.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server error")
	}
}
