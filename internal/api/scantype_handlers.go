package api

import (
	"encoding/json"
	"net/http"

	"github.com/carescan/scanbook/internal/scan"
)

func scanTypeNamesHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := svc.ScanTypeNames(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: names})
	}
}

func listScanTypesHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := svc.ListScanTypes(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		data := make([]ScanTypeResponse, 0, len(types))
		for i := range types {
			data = append(data, toScanTypeResponse(&types[i]))
		}
		writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: data})
	}
}

func createScanTypeHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse request body")
			return
		}

		created, err := svc.CreateScanType(r.Context(), req.Name, req.Duration, creatorID(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, DataResponse{Success: true, Data: toScanTypeResponse(created)})
	}
}

func updateScanTypeHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "id must be a valid UUID")
			return
		}

		var req ScanTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "could not parse request body")
			return
		}

		updated, err := svc.UpdateScanType(r.Context(), id, req.Name, req.Duration)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: toScanTypeResponse(updated)})
	}
}

func deleteScanTypeHandler(svc *scan.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "id must be a valid UUID")
			return
		}

		if err := svc.DeleteScanType(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "scan type deleted successfully"})
	}
}
