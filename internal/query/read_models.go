package query

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStock is a product as seen by the counter, with its low-stock flag.
type ProductStock struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	CurrentStock int             `json:"current_stock"`
	MinStock     int             `json:"min_stock"`
	IsAvailable  bool            `json:"is_available"`
	LowStock     bool            `json:"low_stock"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// LedgerReport is the outcome of replaying a product's movements.
type LedgerReport struct {
	ProductID     string `json:"product_id"`
	StoredStock   int    `json:"stored_stock"`
	ReplayedStock int    `json:"replayed_stock"`
	Movements     int    `json:"movements"`
	Consistent    bool   `json:"consistent"`
	// Index of the first movement whose recorded new stock disagrees with the replay, -1 if none.
	FirstBadSnapshot int `json:"first_bad_snapshot"`
}
