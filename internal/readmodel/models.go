package readmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockLevel is the audit view of one product's stock, built from StockMoved events.
type StockLevel struct {
	ProductID    string `json:"product_id"`
	CurrentStock int    `json:"current_stock"`
	MinStock     int    `json:"min_stock"`
	LowStock     bool   `json:"low_stock"`

	// Replayed is the stock obtained by folding every movement seen so far.
	Replayed   int  `json:"replayed"`
	Consistent bool `json:"consistent"`

	Movements    int       `json:"movements"`
	TotalIn      int       `json:"total_in"`
	TotalOut     int       `json:"total_out"`
	Adjustments  int       `json:"adjustments"`
	LastMovement string    `json:"last_movement_id"`
	LastReason   string    `json:"last_reason"`
	LastMovedBy  string    `json:"last_moved_by"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OrderView is a flattened order for dashboards.
type OrderView struct {
	ID            string          `json:"id"`
	Number        string          `json:"order_number"`
	CustomerID    string          `json:"customer_id"`
	UserID        string          `json:"user_id"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Units         int             `json:"units"`
	Total         decimal.Decimal `json:"total"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
