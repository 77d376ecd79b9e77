package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/example/pos-ledger/internal/domain/user"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, apperr.ErrInsufficientStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, apperr.ErrInvalidOrderStatus):
		return http.StatusConflict, "INVALID_ORDER_STATUS"
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, order.ErrSequenceExhausted):
		return http.StatusServiceUnavailable, "ORDER_NUMBERS_EXHAUSTED"
	case errors.Is(err, user.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, user.ErrUserDeactivated):
		return http.StatusForbidden, "USER_DEACTIVATED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorResponse{Error: err.Error(), Code: code}

	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s %s failed: %v", r.Method, r.URL.Path, err)
		body.Error = "internal error"
	}
	respondJSON(w, status, body)
}

func respondBadRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: message, Code: "BAD_REQUEST"})
}
