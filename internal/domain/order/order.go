package order

import (
	"strings"
	"time"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentCard     PaymentMethod = "CARD"
	PaymentTransfer PaymentMethod = "TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

// Actions named in InvalidStatusError.
const (
	ActionConfirm = "confirmar"
	ActionCancel  = "cancelar"
	ActionDeliver = "marcar como entregada"
)

const MaxNoteLength = 500

// MoneyScale is the number of decimal places amounts are stored with.
const MoneyScale = 2

// ValidAmount reports whether d is representable at MoneyScale without rounding.
func ValidAmount(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusDelivered, StatusCancelled},
	StatusDelivered: {}, // terminal state
	StatusCancelled: {}, // terminal state
}

type Order struct {
	ID             string          `json:"id"`
	Number         string          `json:"order_number"`
	CustomerID     string          `json:"customer_id"`
	UserID         string          `json:"user_id"`
	Status         Status          `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	PaymentNote    string          `json:"payment_note,omitempty"`
	OrderDate      time.Time       `json:"order_date"`
	DeliveredDate  *time.Time      `json:"delivered_date,omitempty"`
	CancelledDate  *time.Time      `json:"cancelled_date,omitempty"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
	CancelledBy    string          `json:"cancelled_by,omitempty"`
	Items          []Item          `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// New returns a PENDING order with no items. Totals stay zero until CalculateTotals.
func New(number, customerID, userID string, method PaymentMethod, discount decimal.Decimal, note string, now time.Time) (*Order, error) {
	if !method.Valid() {
		return nil, apperr.Validation("paymentMethod", "unknown payment method %q", method)
	}
	if discount.IsNegative() {
		return nil, apperr.Validation("discountAmount", "cannot be negative")
	}
	if !ValidAmount(discount) {
		return nil, apperr.Validation("discountAmount", "must have at most %d decimal places", MoneyScale)
	}
	if len(note) > MaxNoteLength {
		return nil, apperr.Validation("paymentNote", "must be at most %d characters", MaxNoteLength)
	}

	o := &Order{
		ID:             uuid.New().String(),
		Number:         number,
		CustomerID:     customerID,
		UserID:         userID,
		Status:         StatusPending,
		DiscountAmount: discount,
		PaymentMethod:  method,
		PaymentStatus:  PaymentPending,
		PaymentNote:    note,
		OrderDate:      now,
	}
	o.TouchCreated(now)
	return o, nil
}

func (o *Order) AddItem(item Item) {
	item.OrderID = o.ID
	o.Items = append(o.Items, item)
}

// CalculateTotals recomputes Subtotal and TotalAmount from the items.
func (o *Order) CalculateTotals() error {
	subtotal := decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.ItemTotal)
	}
	if o.DiscountAmount.GreaterThan(subtotal) {
		return apperr.Validation("discountAmount", "discount %s exceeds subtotal %s",
			o.DiscountAmount.StringFixed(2), subtotal.StringFixed(2))
	}
	o.Subtotal = subtotal
	o.TotalAmount = subtotal.Sub(o.DiscountAmount)
	return nil
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

func (o *Order) CanBeConfirmed() bool { return o.CanTransitionTo(StatusConfirmed) }
func (o *Order) CanBeCancelled() bool { return o.CanTransitionTo(StatusCancelled) }
func (o *Order) CanBeDelivered() bool { return o.CanTransitionTo(StatusDelivered) }

func (o *Order) transitionError(action string) error {
	return &apperr.InvalidStatusError{Current: string(o.Status), Action: action}
}

// Confirm moves a PENDING order to CONFIRMED and records the payment.
func (o *Order) Confirm(now time.Time) error {
	if !o.CanBeConfirmed() {
		return o.transitionError(ActionConfirm)
	}
	o.Status = StatusConfirmed
	o.PaymentStatus = PaymentPaid
	o.TouchUpdated(now)
	return nil
}

// Cancel marks the order CANCELLED. Stock restoration is the caller's job.
func (o *Order) Cancel(reason, cancelledBy string, now time.Time) error {
	if !o.CanBeCancelled() {
		return o.transitionError(ActionCancel)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.Validation("reason", "cancellation reason is required")
	}
	if len(reason) > MaxNoteLength {
		return apperr.Validation("reason", "must be at most %d characters", MaxNoteLength)
	}

	o.Status = StatusCancelled
	o.CancelledDate = &now
	o.CancelReason = reason
	o.CancelledBy = cancelledBy
	if o.PaymentStatus == PaymentPaid {
		o.PaymentStatus = PaymentRefunded
	}
	o.TouchUpdated(now)
	return nil
}

func (o *Order) Deliver(now time.Time) error {
	if !o.CanBeDelivered() {
		return o.transitionError(ActionDeliver)
	}
	o.Status = StatusDelivered
	o.DeliveredDate = &now
	o.TouchUpdated(now)
	return nil
}

func (o *Order) TouchCreated(now time.Time) {
	o.CreatedAt = now
	o.UpdatedAt = now
}

func (o *Order) TouchUpdated(now time.Time) {
	o.UpdatedAt = now
}

// Clone deep-copies the order so stores can hand out snapshots.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	if o.DeliveredDate != nil {
		d := *o.DeliveredDate
		c.DeliveredDate = &d
	}
	if o.CancelledDate != nil {
		d := *o.CancelledDate
		c.CancelledDate = &d
	}
	return &c
}
