package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"mizan/internal/retainer"
)

// Response represents a standard API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(resp)
}

// Common error responses
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func Forbidden(w http.ResponseWriter, message string) {
	Error(w, http.StatusForbidden, "FORBIDDEN", message)
}

func Conflict(w http.ResponseWriter, code, message string) {
	Error(w, http.StatusConflict, code, message)
}

func Unprocessable(w http.ResponseWriter, code, message string) {
	Error(w, http.StatusUnprocessableEntity, code, message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// DomainError maps engine errors onto distinct HTTP codes. Insufficient
// balance and invalid state carry their own codes so the UI can render them
// apart from generic failures.
func DomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retainer.ErrValidation):
		BadRequest(w, err.Error())
	case errors.Is(err, retainer.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, retainer.ErrNotOwner), errors.Is(err, retainer.ErrCaseNotOwned):
		Forbidden(w, err.Error())
	case errors.Is(err, retainer.ErrInsufficientBalance):
		Unprocessable(w, "INSUFFICIENT_BALANCE", err.Error())
	case errors.Is(err, retainer.ErrPaymentNotCompleted):
		Conflict(w, "PAYMENT_NOT_COMPLETED", err.Error())
	case errors.Is(err, retainer.ErrInvalidState):
		Conflict(w, "INVALID_STATE", err.Error())
	case errors.Is(err, retainer.ErrConflict):
		Conflict(w, "CONFLICT", err.Error())
	default:
		InternalError(w, "internal error")
	}
}
