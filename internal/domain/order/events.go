package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderCancelled = "OrderCancelled"
	EventOrderDelivered = "OrderDelivered"
)

type LineSnapshot struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreated struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  string          `json:"customer_id"`
	UserID      string          `json:"user_id"`
	Lines       []LineSnapshot  `json:"lines"`
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"created_at"`
}

type OrderConfirmed struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type OrderCancelled struct {
	OrderID       string         `json:"order_id"`
	OrderNumber   string         `json:"order_number"`
	Reason        string         `json:"reason"`
	CancelledBy   string         `json:"cancelled_by"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	Lines         []LineSnapshot `json:"lines"`
	CancelledAt   time.Time      `json:"cancelled_at"`
}

type OrderDelivered struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func Lines(o *Order) []LineSnapshot {
	lines := make([]LineSnapshot, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, LineSnapshot{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	return lines
}
