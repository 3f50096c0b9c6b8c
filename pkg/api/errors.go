package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harun/smprofiler/pkg/profiler"
	"github.com/harun/smprofiler/pkg/retrieval"
)

// Error codes carried in error responses.
const (
	CodeBadRequest       = "bad_request"
	CodeMissingParameter = "missing_parameter"
	CodeNotFound         = "not_found"
	CodeInvalidData      = "invalid_data"
	CodeStorage          = "storage_unavailable"
	CodeTimeout          = "timeout"
	CodeShuttingDown     = "shutting_down"
	CodeInternal         = "internal"
)

// ErrorBody is the payload of every non-2xx JSON response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps a domain error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, retrieval.ErrMissingParameter):
		return http.StatusBadRequest, CodeMissingParameter
	case errors.Is(err, retrieval.ErrNotFound), errors.Is(err, profiler.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, retrieval.ErrInvalidData):
		return http.StatusBadGateway, CodeInvalidData
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, retrieval.ErrStorage):
		return http.StatusBadGateway, CodeStorage
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// writeDomainError writes err using statusFor. Internal errors get a generic message.
func writeDomainError(w http.ResponseWriter, err error) int {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeError(w, status, code, message)
	return status
}
