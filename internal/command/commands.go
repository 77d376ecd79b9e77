package command

import (
	"strings"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/shopspring/decimal"
)

// Order Commands
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CreateOrder struct {
	CustomerID    string              `json:"customer_id"`
	UserID        string              `json:"-"`
	Lines         []OrderLine         `json:"items"`
	PaymentMethod order.PaymentMethod `json:"payment_method"`
	Discount      decimal.Decimal     `json:"discount_amount"`
	PaymentNote   string              `json:"payment_note"`
}

// Validate rejects everything that can be checked before touching stock.
func (c CreateOrder) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return apperr.Validation("userId", "acting user is required")
	}
	if strings.TrimSpace(c.CustomerID) == "" {
		return apperr.Validation("customerId", "is required")
	}
	if len(c.Lines) == 0 {
		return apperr.Validation("items", "order must have at least one item")
	}
	if !c.PaymentMethod.Valid() {
		return apperr.Validation("paymentMethod", "unknown payment method %q", c.PaymentMethod)
	}
	if c.Discount.IsNegative() {
		return apperr.Validation("discountAmount", "cannot be negative")
	}
	if !order.ValidAmount(c.Discount) {
		return apperr.Validation("discountAmount", "must have at most %d decimal places", order.MoneyScale)
	}
	if len(c.PaymentNote) > order.MaxNoteLength {
		return apperr.Validation("paymentNote", "must be at most %d characters", order.MaxNoteLength)
	}

	subtotal := decimal.Zero
	for i, line := range c.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return apperr.Validation("items", "line %d has no product", i+1)
		}
		if line.Quantity < 1 {
			return apperr.Validation("items", "line %d: quantity must be at least 1", i+1)
		}
		if line.UnitPrice.IsNegative() {
			return apperr.Validation("items", "line %d: unit price cannot be negative", i+1)
		}
		if !order.ValidAmount(line.UnitPrice) {
			return apperr.Validation("items", "line %d: unit price must have at most %d decimal places", i+1, order.MoneyScale)
		}
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if c.Discount.GreaterThan(subtotal) {
		return apperr.Validation("discountAmount", "discount %s exceeds subtotal %s",
			c.Discount.StringFixed(2), subtotal.StringFixed(2))
	}
	return nil
}

type CancelOrder struct {
	OrderID string `json:"-"`
	Reason  string `json:"reason"`
	UserID  string `json:"-"`
}

func (c CancelOrder) validateActor() error {
	if strings.TrimSpace(c.UserID) == "" {
		return apperr.Validation("userId", "acting user is required")
	}
	return nil
}

// Validate checks the reason. CancelOrder runs it only once the order is known to be
// cancellable, so a terminal order reports its status first.
func (c CancelOrder) Validate() error {
	if err := c.validateActor(); err != nil {
		return err
	}
	reason := strings.TrimSpace(c.Reason)
	if reason == "" {
		return apperr.Validation("reason", "cancellation reason is required")
	}
	if len(reason) > order.MaxNoteLength {
		return apperr.Validation("reason", "must be at most %d characters", order.MaxNoteLength)
	}
	return nil
}

// Inventory Commands
type RegisterMovement struct {
	ProductID    string                 `json:"product_id"`
	Type         inventory.MovementType `json:"movement_type"`
	Quantity     int                    `json:"quantity"`
	Reason       string                 `json:"reason"`
	UserID       string                 `json:"-"`
	PurchaseCost *decimal.Decimal       `json:"purchase_cost,omitempty"`
}
