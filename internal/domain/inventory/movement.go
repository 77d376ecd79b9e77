package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

const AggregateType = "Inventory"

type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment:
		return true
	}
	return false
}

const MaxReasonLength = 255

// purchase costs are stored in NUMERIC(12,2)
const costScale = 2

// Movement is one immutable ledger row. NewStock is the product's stock right after it was applied.
// For ADJUSTMENT rows Quantity holds the absolute stock that was set, not a delta.
type Movement struct {
	ID           string           `json:"id"`
	ProductID    string           `json:"product_id"`
	Type         MovementType     `json:"movement_type"`
	Quantity     int              `json:"quantity"`
	Reason       string           `json:"reason"`
	UserID       string           `json:"user_id"`
	NewStock     int              `json:"new_stock"`
	PurchaseCost *decimal.Decimal `json:"purchase_cost,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

func (m *Movement) Clone() *Movement {
	c := *m
	if m.PurchaseCost != nil {
		cost := *m.PurchaseCost
		c.PurchaseCost = &cost
	}
	return &c
}

// Next returns the stock that results from applying a movement of type t and quantity q to current.
func Next(current int, t MovementType, q int) int {
	switch t {
	case MovementIn:
		return current + q
	case MovementOut:
		return current - q
	case MovementAdjustment:
		return q
	}
	return current
}
