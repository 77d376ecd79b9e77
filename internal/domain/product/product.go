package product

import (
	"time"

	"github.com/shopspring/decimal"
)

const AggregateType = "Product"

// DefaultMinStock is the low-stock threshold applied when a product has none configured.
const DefaultMinStock = 5

// Product is the catalog entry whose CurrentStock the ledger maintains.
// CurrentStock must only change through the stock ledger.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	CurrentStock int             `json:"current_stock"`
	MinStock     int             `json:"min_stock"`
	IsAvailable  bool            `json:"is_available"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HasLowStock reports whether the stock fell under the configured minimum.
func (p *Product) HasLowStock() bool {
	min := p.MinStock
	if min <= 0 {
		min = DefaultMinStock
	}
	return p.CurrentStock < min
}

func (p *Product) TouchCreated(now time.Time) {
	p.CreatedAt = now
	p.UpdatedAt = now
}

func (p *Product) TouchUpdated(now time.Time) {
	p.UpdatedAt = now
}

// Clone returns a copy that can be staged and mutated independently.
func (p *Product) Clone() *Product {
	c := *p
	return &c
}
