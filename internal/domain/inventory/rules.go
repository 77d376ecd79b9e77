package inventory

import (
	"strings"
	"time"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/product"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request describes one stock change before it is applied to a locked product.
type Request struct {
	Type         MovementType
	Quantity     int
	Reason       string
	UserID       string
	PurchaseCost *decimal.Decimal
	// Compensating marks an IN that reverses an earlier OUT (order cancellation).
	// Nothing was purchased, so no purchase cost is required.
	Compensating bool
}

// Validate checks the request on its own, without looking at the product.
func (r Request) Validate() error {
	if !r.Type.Valid() {
		return apperr.Validation("movementType", "unknown movement type %q", r.Type)
	}
	if r.Type == MovementAdjustment {
		if r.Quantity < 0 {
			return apperr.Validation("quantity", "adjusted stock cannot be negative")
		}
	} else if r.Quantity <= 0 {
		return apperr.Validation("quantity", "must be greater than zero")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return apperr.Validation("userId", "acting user is required")
	}
	if len(r.Reason) > MaxReasonLength {
		return apperr.Validation("reason", "must be at most %d characters", MaxReasonLength)
	}

	switch {
	case r.Type == MovementIn && !r.Compensating:
		if r.PurchaseCost == nil {
			return apperr.Validation("purchaseCost", "is required for IN movements")
		}
		if !r.PurchaseCost.IsPositive() {
			return apperr.Validation("purchaseCost", "must be greater than zero")
		}
		if !r.PurchaseCost.Equal(r.PurchaseCost.Round(costScale)) {
			return apperr.Validation("purchaseCost", "must have at most %d decimal places", costScale)
		}
	case r.PurchaseCost != nil:
		return apperr.Validation("purchaseCost", "is only allowed for IN movements")
	}
	return nil
}

// Apply validates req against p, mutates p's stock and version, and returns the movement to append.
// On error p is left untouched.
func Apply(p *product.Product, req Request, now time.Time) (*Movement, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	newStock := Next(p.CurrentStock, req.Type, req.Quantity)
	if newStock < 0 {
		return nil, &apperr.InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Current:     p.CurrentStock,
			Requested:   req.Quantity,
		}
	}

	p.CurrentStock = newStock
	p.Version++
	p.TouchUpdated(now)

	return &Movement{
		ID:           uuid.New().String(),
		ProductID:    p.ID,
		Type:         req.Type,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		UserID:       req.UserID,
		NewStock:     newStock,
		PurchaseCost: req.PurchaseCost,
		CreatedAt:    now,
	}, nil
}
