package api

import (
	"encoding/json"
	"net/http"

	"github.com/wlt-go/wlt/src/internal/errors"
	"github.com/wlt-go/wlt/src/internal/log"
)

// ErrorCode represents standard API error codes.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates malformed request data.
	ErrCodeInvalidRequest ErrorCode = "invalid_request"

	// ErrCodeInternalError indicates an internal server error.
	ErrCodeInternalError ErrorCode = "internal_error"

	// ErrCodeValidationFailed indicates the selection was rejected.
	ErrCodeValidationFailed ErrorCode = "validation_failed"

	// ErrCodeTableUnavailable indicates the mark map is missing or not accessible.
	ErrCodeTableUnavailable ErrorCode = "table_unavailable"

	// ErrCodeConflict indicates the entry kept changing under concurrent writers.
	ErrCodeConflict ErrorCode = "conflict"

	// ErrCodeTableError indicates any other mark map failure.
	ErrCodeTableError ErrorCode = "table_error"
)

// APIError represents a structured API error response.
type APIError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps an APIError for JSON responses.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// NewAPIError creates a new APIError with the given code and message.
func NewAPIError(code ErrorCode, message string) APIError {
	return APIError{
		Code:    code,
		Message: message,
		Details: nil,
	}
}

// WithDetails adds details to an APIError.
func (e APIError) WithDetails(details map[string]interface{}) APIError {
	e.Details = details
	return e
}

// WriteError writes an error response to the HTTP response writer.
func WriteError(w http.ResponseWriter, statusCode int, err APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{Error: err}); encErr != nil {
		log.Warnf("Failed to write error response: %v", encErr)
	}
}

// WriteInvalidRequest writes a 400 Bad Request error.
func WriteInvalidRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, NewAPIError(ErrCodeInvalidRequest, message))
}

// WriteInternalError writes a 500 Internal Server Error.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, NewAPIError(ErrCodeInternalError, message))
}

// statusOf maps a service error to an HTTP status and API error code.
func statusOf(err error) (int, ErrorCode) {
	switch {
	case errors.IsValidation(err):
		return http.StatusBadRequest, ErrCodeValidationFailed
	case errors.IsTable(err):
		switch errors.TableKindOf(err) {
		case errors.TableErrMissingMap, errors.TableErrPermission:
			return http.StatusServiceUnavailable, ErrCodeTableUnavailable
		case errors.TableErrConflict:
			return http.StatusConflict, ErrCodeConflict
		default:
			return http.StatusBadGateway, ErrCodeTableError
		}
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

// WriteServiceError writes the response for an error returned by the outlet service.
func WriteServiceError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	apiErr := NewAPIError(code, err.Error())
	if kind := errors.TableKindOf(err); kind != "" {
		apiErr = apiErr.WithDetails(map[string]interface{}{"kind": string(kind)})
	}
	WriteError(w, status, apiErr)
}
