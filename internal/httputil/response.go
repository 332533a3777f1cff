package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/verigate/code-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Status string              `json:"status"`
	Error  string              `json:"error"`
	Code   apperrors.ErrorCode `json:"code,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = apperrors.Internal("internal_error")
	}

	status := statusFromCode(appErr.Code)
	response := ErrorResponse{
		Status: "error",
		Error:  appErr.Message,
		Code:   appErr.Code,
	}

	WriteJSON(w, status, response)
}

// statusFromCode maps ErrorCode to HTTP status code
func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeMissingCode,
		apperrors.ErrCodeInvalidTTL:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized

	// 404 Not Found. Deliberately used for every redemption failure.
	case apperrors.ErrCodeInvalidOrExpired:
		return http.StatusNotFound

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
