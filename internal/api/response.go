package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PentesterFlow/ScrapeIt/internal/auth"
	cerrors "github.com/PentesterFlow/ScrapeIt/internal/errors"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

// Envelope statuses.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// SuccessResponse wraps the data of a successful call.
type SuccessResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// ErrorResponse describes a failed call.
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, SuccessResponse{Status: statusSuccess, Data: data})
}

func writeError(w http.ResponseWriter, status int, label, details string) {
	writeJSON(w, status, ErrorResponse{Status: statusError, Error: label, Details: details})
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, crawler.ErrManagerClosed):
		return http.StatusServiceUnavailable
	}

	switch cerrors.GetErrorType(err) {
	case cerrors.Policy:
		return http.StatusBadRequest
	case cerrors.NotFound:
		return http.StatusNotFound
	case cerrors.Timeout:
		return http.StatusGatewayTimeout
	case cerrors.Navigation, cerrors.Network:
		return http.StatusBadGateway
	case cerrors.PoolExhausted, cerrors.PoolClosed, cerrors.Cancelled:
		return http.StatusServiceUnavailable
	}
	if code := cerrors.GetStatusCode(err); code >= 400 {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail writes err as an error response. label names the failed operation,
// e.g. "Scraping error"; timeouts are always labelled "Timeout".
func (s *Server) fail(w http.ResponseWriter, r *http.Request, label string, err error) {
	status := statusFor(err)
	if status == http.StatusGatewayTimeout {
		label = "Timeout"
	}

	level := logger.WarnLevel
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout {
		level = logger.ErrorLevel
	}
	s.log.Event(level).
		Err(err).
		Str("path", r.URL.Path).
		Int("status", status).
		Str("error_type", cerrors.GetErrorType(err).String()).
		Msg(label)

	writeError(w, status, label, err.Error())
}
