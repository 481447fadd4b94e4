package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"larder/internal/apierr"
	"larder/internal/catalog"
	applog "larder/internal/log"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
	maxBodyBytes    = 1 << 20
)

// Pagination bounds the page size accepted by list endpoints.
type Pagination struct {
	DefaultSize int
	MaxSize     int
}

var (
	catalogService *catalog.Service
	pagination     = Pagination{DefaultSize: defaultPageSize, MaxSize: maxPageSize}
)

// Configure wires the handler dependencies. Zero pagination values keep
// the defaults.
func Configure(service *catalog.Service, pages Pagination) {
	catalogService = service
	pagination = Pagination{DefaultSize: defaultPageSize, MaxSize: maxPageSize}
	if pages.DefaultSize > 0 {
		pagination.DefaultSize = pages.DefaultSize
	}
	if pages.MaxSize > 0 {
		pagination.MaxSize = pages.MaxSize
	}
	if pagination.DefaultSize > pagination.MaxSize {
		pagination.DefaultSize = pagination.MaxSize
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(context.Background(), "failed to encode json response", "error", err)
	}
}

// writeError maps err to its status and error code. Errors outside the
// api taxonomy are logged and reported as internal errors.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := apierr.As(err); ok {
		applog.Debug(r.Context(), "request rejected", "status", apiErr.Status, "code", apiErr.Code, "error", apiErr.Error())
		writeJSON(w, apierr.StatusOf(err), errorResponse{Error: apiErr.Error(), Code: apiErr.Code})
		return
	}
	applog.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: apierr.CodeInternal})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierr.BadRequest("invalid request body: %v", err)
	}
	return nil
}
