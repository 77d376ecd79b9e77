package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_MatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", NotFound("order", "o-1"), ErrNotFound},
		{"validation", Validation("items", "must not be empty"), ErrValidation},
		{"insufficient stock", &InsufficientStockError{ProductID: "p-1", Current: 10, Requested: 11}, ErrInsufficientStock},
		{"invalid status", &InvalidStatusError{Current: "CONFIRMED", Action: "confirmar"}, ErrInvalidOrderStatus},
		{"conflict", &ConflictError{Resource: "order_number", Key: "ORD-20260101-0001"}, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestErrors_DoNotCrossMatch(t *testing.T) {
	err := NotFound("product", "p-1")

	assert.False(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestInsufficientStockError_CarriesQuantities(t *testing.T) {
	err := fmt.Errorf("decrement: %w", &InsufficientStockError{ProductID: "p-1", ProductName: "Cafe", Current: 10, Requested: 11})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 10, stockErr.Current)
	assert.Equal(t, 11, stockErr.Requested)
	assert.Contains(t, err.Error(), "Stock actual: 10, cantidad requerida: 11")
}

func TestInvalidStatusError_Message(t *testing.T) {
	err := &InvalidStatusError{Current: "DELIVERED", Action: "cancelar"}

	assert.Equal(t, "No se puede cancelar una orden en estado DELIVERED", err.Error())
}

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "discount: exceeds subtotal", Validation("discount", "exceeds subtotal").Error())
	assert.Equal(t, "bad input", Validation("", "bad %s", "input").Error())
}
